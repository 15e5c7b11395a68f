package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// =============================================================================
// ORDER REPOSITORY
// =============================================================================

type OrderRepository struct{}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{}
}

const orderColumns = `
	id, order_date, first_name, last_name, email, phone, address, city, postal_code,
	items_json, subtotal, shipping, total, payment_method, delivery_time, notes, status`

// =============================================================================
// CORE OPERATIONS
// =============================================================================

// Insert stores a new order. Orders are never updated afterwards.
func (r *OrderRepository) Insert(ctx context.Context, o Order) error {
	itemsJSON, err := marshalJSON(o.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}

	const stmt = `
		INSERT INTO orders (` + orderColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	c := o.Customer
	_, err = ExecDB(ctx, stmt,
		o.ID, formatTime(o.Date),
		c.FirstName, c.LastName, c.Email, c.Phone, c.Address, c.City, c.PostalCode,
		itemsJSON, o.Subtotal, o.Shipping, o.Total,
		o.PaymentMethod, o.DeliveryTime, o.Notes, o.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	row, err := QueryRowDB(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// List returns the most recent orders first.
func (r *OrderRepository) List(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := QueryDB(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY order_date DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order rows: %w", err)
		}
		result = append(result, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}

	return result, nil
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var orderDate, itemsJSON string
	var notes sql.NullString

	err := row.Scan(
		&o.ID, &orderDate,
		&o.Customer.FirstName, &o.Customer.LastName, &o.Customer.Email, &o.Customer.Phone,
		&o.Customer.Address, &o.Customer.City, &o.Customer.PostalCode,
		&itemsJSON, &o.Subtotal, &o.Shipping, &o.Total,
		&o.PaymentMethod, &o.DeliveryTime, &notes, &o.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if o.Date, err = parseTime(orderDate); err != nil {
		return nil, fmt.Errorf("failed to parse order date: %w", err)
	}
	o.Notes = notes.String

	o.Items = []LineItem{}
	if err := unmarshalJSON(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items: %w", err)
	}

	return &o, nil
}

// =============================================================================
// WRAPPER FUNCTIONS
// =============================================================================

func InsertOrder(ctx context.Context, o Order) error {
	return NewOrderRepository().Insert(ctx, o)
}

func GetOrderByID(ctx context.Context, id string) (*Order, error) {
	return NewOrderRepository().GetByID(ctx, id)
}

func ListOrders(ctx context.Context, limit int) ([]Order, error) {
	return NewOrderRepository().List(ctx, limit)
}
