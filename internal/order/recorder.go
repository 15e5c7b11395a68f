// internal/order/recorder.go
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"storefront/internal/cart"
	"storefront/internal/data"
	"storefront/internal/form"
	"storefront/internal/logger"
)

const StatusProcessing = "processing"

var (
	ErrInvalidForm = errors.New("checkout form is invalid")
	ErrEmptyCart   = errors.New("cart is empty")
	ErrNotFound    = errors.New("order not found")
)

// ValidationError carries the per-field messages of a rejected checkout.
type ValidationError struct {
	Fields form.Errors
}

func (e *ValidationError) Error() string { return e.Fields.Error() }

func (e *ValidationError) Unwrap() error { return ErrInvalidForm }

// Repository is the durable side of the recorder.
type Repository interface {
	Insert(ctx context.Context, o data.Order) error
	GetByID(ctx context.Context, id string) (*data.Order, error)
}

// Recorder turns a validated checkout and a cart into a stored order.
type Recorder struct {
	repo Repository
	now  func() time.Time
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

// PlaceOrder validates c, snapshots the cart and persists the order.
// The cart stays locked from the snapshot until it is cleared, and it is
// cleared only after the order is stored.
func (r *Recorder) PlaceOrder(ctx context.Context, m *cart.Machine, c form.Checkout) (*data.Order, error) {
	c.Normalize()
	if errs := form.Validate(c); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	var o data.Order
	err := m.Checkout(func(state cart.State) error {
		if len(state.Items) == 0 {
			return ErrEmptyCart
		}
		o = r.newOrder(state, c)
		if err := r.repo.Insert(ctx, o); err != nil {
			return fmt.Errorf("failed to save order %s: %w", o.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.LogInfo("Order %s placed: %d items, total %.2f, payment %s, delivery %s",
		o.ID, o.ItemCount(), o.Total, o.PaymentMethod, o.DeliveryTime)
	return &o, nil
}

func (r *Recorder) newOrder(state cart.State, c form.Checkout) data.Order {
	now := r.now().UTC().Truncate(time.Second)
	quote := QuoteFor(state.Total, c.DeliveryTime)

	items := make([]data.LineItem, 0, len(state.Items))
	for _, it := range state.Items {
		items = append(items, data.LineItem{
			ID:       it.ID,
			Name:     it.Name,
			Price:    it.Price,
			Image:    it.Image,
			Weight:   it.Weight,
			Quantity: it.Quantity,
		})
	}

	return data.Order{
		ID:   NewOrderID(now),
		Date: now,
		Customer: data.Customer{
			FirstName:  c.FirstName,
			LastName:   c.LastName,
			Email:      c.Email,
			Phone:      c.Phone,
			Address:    c.Address,
			City:       c.City,
			PostalCode: c.PostalCode,
		},
		Items:         items,
		Subtotal:      quote.Subtotal,
		Shipping:      quote.Shipping,
		Total:         quote.Total,
		PaymentMethod: c.PaymentMethod,
		DeliveryTime:  c.DeliveryTime,
		Notes:         c.Notes,
		Status:        StatusProcessing,
	}
}

// Lookup fetches a stored order for the confirmation view.
func (r *Recorder) Lookup(ctx context.Context, id string) (*data.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	o, err := r.repo.GetByID(ctx, id)
	if errors.Is(err, data.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	return o, nil
}

// NewOrderID builds ORD-YYYYMMDD-XXXXXXXX from the order date and a random suffix.
func NewOrderID(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", t.UTC().Format("20060102"), suffix)
}
