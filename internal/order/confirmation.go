package order

import (
	"time"

	"storefront/internal/data"
	"storefront/internal/form"
)

// EstimateDelivery is when the order should arrive.
func EstimateDelivery(o data.Order) time.Time {
	if o.DeliveryTime == form.DeliveryExpr {
		return o.Date.Add(3 * time.Hour)
	}
	return o.Date.Add(24 * time.Hour)
}

// Confirmation is the view of a stored order after checkout.
type Confirmation struct {
	Order             data.Order `json:"order"`
	EstimatedDelivery time.Time  `json:"estimatedDelivery"`
	ItemCount         int        `json:"itemCount"`
}

func NewConfirmation(o data.Order) Confirmation {
	return Confirmation{
		Order:             o,
		EstimatedDelivery: EstimateDelivery(o),
		ItemCount:         o.ItemCount(),
	}
}
