// internal/data/data.go
package data

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
}

// LineItem is the snapshot of one cart entry stored with an order.
type LineItem struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
	Weight   string  `json:"weight"`
	Quantity int     `json:"quantity"`
}

type Order struct {
	ID            string     `json:"id"`
	Date          time.Time  `json:"date"`
	Customer      Customer   `json:"customer"`
	Items         []LineItem `json:"items"`
	Subtotal      float64    `json:"subtotal"`
	Shipping      float64    `json:"shipping"`
	Total         float64    `json:"total"`
	PaymentMethod string     `json:"paymentMethod"`
	DeliveryTime  string     `json:"deliveryTime"`
	Notes         string     `json:"notes"`
	Status        string     `json:"status"`
}

// ItemCount is the sum of all quantities in the order.
func (o Order) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

type OrderSummary struct {
	TotalOrders         int
	TotalItems          int
	Revenue             float64
	ShippingCollected   float64
	PaymentMethodCounts map[string]int
	DeliveryTimeCounts  map[string]int
	TopProducts         []ProductCount
}

type ProductCount struct {
	Name     string
	Quantity int
}

// ComputeOrderSummary aggregates stored orders for reporting.
func ComputeOrderSummary(orders []Order) OrderSummary {
	summary := OrderSummary{
		PaymentMethodCounts: make(map[string]int),
		DeliveryTimeCounts:  make(map[string]int),
	}

	revenue := decimal.Zero
	shipping := decimal.Zero
	byProduct := make(map[string]int)

	for _, o := range orders {
		summary.TotalOrders++
		summary.TotalItems += o.ItemCount()
		revenue = revenue.Add(decimal.NewFromFloat(o.Total))
		shipping = shipping.Add(decimal.NewFromFloat(o.Shipping))
		summary.PaymentMethodCounts[o.PaymentMethod]++
		summary.DeliveryTimeCounts[o.DeliveryTime]++
		for _, item := range o.Items {
			byProduct[item.Name] += item.Quantity
		}
	}

	summary.Revenue = revenue.Round(2).InexactFloat64()
	summary.ShippingCollected = shipping.Round(2).InexactFloat64()

	for name, qty := range byProduct {
		summary.TopProducts = append(summary.TopProducts, ProductCount{Name: name, Quantity: qty})
	}
	sort.Slice(summary.TopProducts, func(i, j int) bool {
		a, b := summary.TopProducts[i], summary.TopProducts[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		return a.Name < b.Name
	})

	return summary
}
