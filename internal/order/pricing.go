package order

import (
	"github.com/shopspring/decimal"

	"storefront/internal/form"
)

const (
	FreeShippingThreshold = 50.0
	ShippingCost          = 5.99
	ExpressSurcharge      = 4.99
)

// Quote is the price breakdown shown on the cart and stored with an order.
type Quote struct {
	Subtotal float64 `json:"subtotal"`
	Shipping float64 `json:"shipping"`
	Total    float64 `json:"total"`
	// FreeShippingRemaining is how much more the customer must spend to
	// have the base shipping waived. Zero once the threshold is reached.
	FreeShippingRemaining float64 `json:"freeShippingRemaining"`
}

// QuoteFor prices a subtotal. The express surcharge applies even when the
// base shipping is waived, and is reported inside Shipping.
func QuoteFor(subtotal float64, deliveryTime string) Quote {
	sub := decimal.NewFromFloat(subtotal).Round(2)
	threshold := decimal.NewFromFloat(FreeShippingThreshold)

	shipping := decimal.Zero
	remaining := decimal.Zero
	if sub.LessThan(threshold) {
		shipping = decimal.NewFromFloat(ShippingCost)
		remaining = threshold.Sub(sub)
	}
	if deliveryTime == form.DeliveryExpr {
		shipping = shipping.Add(decimal.NewFromFloat(ExpressSurcharge))
	}

	return Quote{
		Subtotal:              sub.InexactFloat64(),
		Shipping:              shipping.Round(2).InexactFloat64(),
		Total:                 sub.Add(shipping).Round(2).InexactFloat64(),
		FreeShippingRemaining: remaining.Round(2).InexactFloat64(),
	}
}
