// test_data.go - fixtures shared by the integration tests
package testing

import "storefront/internal/form"

// SampleSheet is a header row plus free, premium and invalid picks.
func SampleSheet() [][]interface{} {
	return [][]interface{}{
		{"match", "pick", "odds", "isfree", "status", "justification", "league"},
		{"América vs Chivas", "Over 2.5", "2,50", "TRUE", "won", "Ambos llegan goleando", "Liga MX"},
		{"Pumas vs Tigres", "Empate", 3.1, "false", "", "Clásico cerrado", "Liga MX"},
		{"Real Madrid vs Barcelona", "Ambos anotan", "1.85", "true", "pending"},
		{"Sin pick", "", "1.50", "true"},
		{"Cuotas rotas", "Local", "n/a", "false"},
	}
}

// HeaderOnlySheet has the columns but no picks.
func HeaderOnlySheet() [][]interface{} {
	return [][]interface{}{{"match", "pick", "odds", "isfree", "status"}}
}

// ValidCheckout is a form that passes validation.
func ValidCheckout() form.Checkout {
	return form.Checkout{
		FirstName:     "María",
		LastName:      "Hernández",
		Email:         "maria@example.com",
		Phone:         "951 555 0101",
		Address:       "Av. Juárez 200",
		City:          "Oaxaca",
		PostalCode:    "68000",
		PaymentMethod: form.PaymentCash,
		DeliveryTime:  form.DeliveryStd,
		Notes:         "Tocar el timbre",
	}
}
