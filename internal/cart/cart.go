// Package cart holds the shopping cart: a pure reducer over cart actions,
// a Machine that applies them for one session and mirrors the result to a
// durable store, and a Registry of per-session machines.
package cart

import (
	"github.com/shopspring/decimal"
)

type Item struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
	Weight   string  `json:"weight"`
	Quantity int     `json:"quantity"`
}

// State is the whole cart. Total is always derived from Items.
type State struct {
	Items []Item  `json:"items"`
	Total float64 `json:"total"`
}

// Empty is the initial state.
func Empty() State {
	return State{Items: []Item{}, Total: 0}
}

// ItemCount is the sum of all quantities.
func (s State) ItemCount() int {
	n := 0
	for _, item := range s.Items {
		n += item.Quantity
	}
	return n
}

// Find returns the item with the id, if present.
func (s State) Find(id int) (Item, bool) {
	for _, item := range s.Items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}

func (s State) clone() State {
	items := make([]Item, len(s.Items))
	copy(items, s.Items)
	return State{Items: items, Total: s.Total}
}

type ActionType int

const (
	ActionAdd ActionType = iota + 1
	ActionRemove
	ActionUpdateQuantity
	ActionClear
)

func (t ActionType) String() string {
	switch t {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionUpdateQuantity:
		return "update_quantity"
	case ActionClear:
		return "clear"
	default:
		return "unknown"
	}
}

type Action struct {
	Type     ActionType
	Item     Item // ActionAdd
	ID       int  // ActionRemove, ActionUpdateQuantity
	Quantity int  // ActionUpdateQuantity
}

// Reduce applies one action and returns the next state. The input is never modified.
func Reduce(s State, a Action) State {
	switch a.Type {
	case ActionAdd:
		items := make([]Item, 0, len(s.Items)+1)
		merged := false
		for _, item := range s.Items {
			if item.ID == a.Item.ID && !merged {
				item.Quantity += a.Item.Quantity
				merged = true
			}
			items = append(items, item)
		}
		if !merged {
			items = append(items, a.Item)
		}
		return withTotal(items)

	case ActionRemove:
		items := make([]Item, 0, len(s.Items))
		for _, item := range s.Items {
			if item.ID != a.ID {
				items = append(items, item)
			}
		}
		return withTotal(items)

	case ActionUpdateQuantity:
		items := make([]Item, len(s.Items))
		for i, item := range s.Items {
			if item.ID == a.ID {
				item.Quantity = a.Quantity
			}
			items[i] = item
		}
		return withTotal(items)

	case ActionClear:
		return Empty()

	default:
		return s
	}
}

func withTotal(items []Item) State {
	return State{Items: items, Total: calculateTotal(items)}
}

func calculateTotal(items []Item) float64 {
	sum := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum.Round(2).InexactFloat64()
}
