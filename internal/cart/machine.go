package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storefront/internal/logger"
	"storefront/internal/notify"
)

const persistTimeout = 5 * time.Second

// Store is the durable key-value backing for carts.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// StorageKey maps a session id to the key its cart is saved under.
func StorageKey(sessionID string) string {
	if sessionID == "" {
		return "cart"
	}
	return "cart:" + sessionID
}

// Machine owns one cart. Each mutation updates the state, recomputes the
// total and writes the store before the next mutation can start.
type Machine struct {
	mu    sync.Mutex
	state State
	key   string
	store Store

	notifier     notify.Notifier
	persistError func(key string, err error)

	// pubMu is taken before mu is released so states reach
	// subscribers in mutation order.
	pubMu   sync.Mutex
	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

type Option func(*Machine)

// WithNotifier routes add/remove notices to n.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Machine) { m.notifier = n }
}

// WithPersistErrorHook replaces the default hook, which logs.
func WithPersistErrorHook(fn func(key string, err error)) Option {
	return func(m *Machine) { m.persistError = fn }
}

// New builds a machine and restores any cart saved under key.
func New(ctx context.Context, store Store, key string, opts ...Option) *Machine {
	m := &Machine{
		state:    Empty(),
		key:      key,
		store:    store,
		notifier: notify.Discard,
		persistError: func(key string, err error) {
			logger.LogError("Failed to save cart %s: %v", key, err)
		},
		subs: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.load(ctx)
	return m
}

func (m *Machine) load(ctx context.Context) {
	if m.store == nil {
		return
	}

	raw, ok, err := m.store.Get(ctx, m.key)
	if err != nil {
		logger.LogError("Failed to read saved cart %s: %v", m.key, err)
		return
	}
	if !ok {
		return
	}

	var saved State
	if err := json.Unmarshal(raw, &saved); err != nil {
		logger.LogError("Error parsing saved cart %s, starting empty: %v", m.key, err)
		m.persist(m.state)
		return
	}

	// Replay through the reducer so duplicate ids in the payload merge.
	next := Reduce(m.state, Action{Type: ActionClear})
	for _, item := range saved.Items {
		next = Reduce(next, Action{Type: ActionAdd, Item: item})
	}
	m.state = next
	m.persist(m.state)
}

// AddItem merges the quantity into an existing entry or appends the item.
func (m *Machine) AddItem(item Item) State {
	s := m.apply(Action{Type: ActionAdd, Item: item})
	m.notifyAdded(item)
	return s
}

// AddItemWithin adds item only if the cart's quantity for that id stays
// within limit afterwards. The check and the add happen under one lock.
func (m *Machine) AddItemWithin(item Item, limit int) (State, bool) {
	m.mu.Lock()
	inCart := 0
	if existing, ok := m.state.Find(item.ID); ok {
		inCart = existing.Quantity
	}
	if inCart+item.Quantity > limit {
		s := m.state.clone()
		m.mu.Unlock()
		return s, false
	}

	s := m.commit(Reduce(m.state, Action{Type: ActionAdd, Item: item}))
	m.notifyAdded(item)
	return s, true
}

func (m *Machine) notifyAdded(item Item) {
	m.notifier.Notify(notify.Notice{
		Title:       "Producto añadido",
		Description: fmt.Sprintf("%s se ha añadido al carrito", item.Name),
		Variant:     notify.Default,
	})
}

// RemoveItem deletes the entry; absent ids leave the state unchanged.
func (m *Machine) RemoveItem(id int) State {
	s := m.apply(Action{Type: ActionRemove, ID: id})
	m.notifier.Notify(notify.Notice{
		Title:       "Producto eliminado",
		Description: "El producto se ha eliminado del carrito",
		Variant:     notify.Destructive,
	})
	return s
}

// UpdateQuantity sets the quantity verbatim. Callers guard the range.
func (m *Machine) UpdateQuantity(id, quantity int) State {
	return m.apply(Action{Type: ActionUpdateQuantity, ID: id, Quantity: quantity})
}

func (m *Machine) Clear() State {
	return m.apply(Action{Type: ActionClear})
}

// Checkout hands fn the current cart and clears it when fn returns nil.
// No other mutation runs in between, so the cleared state is exactly what
// fn saw. fn must not call back into m.
func (m *Machine) Checkout(fn func(State) error) error {
	m.mu.Lock()
	committed := false
	defer func() {
		if !committed {
			m.mu.Unlock()
		}
	}()

	if err := fn(m.state.clone()); err != nil {
		return err
	}
	committed = true
	m.commit(Reduce(m.state, Action{Type: ActionClear}))
	return nil
}

func (m *Machine) apply(a Action) State {
	m.mu.Lock()
	return m.commit(Reduce(m.state, a))
}

// commit runs with m.mu held and releases it.
func (m *Machine) commit(next State) State {
	m.state = next
	snapshot := next.clone()
	m.persist(snapshot)

	m.pubMu.Lock()
	m.mu.Unlock()
	defer m.pubMu.Unlock()

	m.publish(snapshot)
	return snapshot
}

// persist runs with m.mu held.
func (m *Machine) persist(s State) {
	if m.store == nil {
		return
	}

	payload, err := json.Marshal(s)
	if err != nil {
		m.persistError(m.key, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := m.store.Put(ctx, m.key, payload); err != nil {
		m.persistError(m.key, err)
	}
}

// State returns a copy of the current cart.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *Machine) Items() []Item {
	return m.State().Items
}

func (m *Machine) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Total
}

func (m *Machine) ItemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ItemCount()
}

func (m *Machine) Key() string {
	return m.key
}

// Subscribe registers fn to receive the state after every mutation, in
// mutation order. fn must not mutate the cart.
// The returned func removes the subscription.
func (m *Machine) Subscribe(fn func(State)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Machine) publish(s State) {
	m.subMu.Lock()
	fns := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(s.clone())
	}
}

// Close drops every subscriber. The machine stays usable.
func (m *Machine) Close() {
	m.subMu.Lock()
	m.subs = make(map[int]func(State))
	m.subMu.Unlock()
}
