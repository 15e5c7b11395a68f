package api

import (
	"fmt"
	"net/http"
	"strconv"

	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/form"
	"storefront/internal/middleware"
	"storefront/internal/order"
)

const freeShippingHint = "Envío gratis en pedidos superiores a $50"

type cartView struct {
	Items     []cart.Item `json:"items"`
	Total     float64     `json:"total"`
	ItemCount int         `json:"itemCount"`
	Quote     order.Quote `json:"quote"`
	Hint      string      `json:"hint,omitempty"`
}

func newCartView(st cart.State) cartView {
	q := order.QuoteFor(st.Total, form.DeliveryStd)
	v := cartView{
		Items:     st.Items,
		Total:     st.Total,
		ItemCount: st.ItemCount(),
		Quote:     q,
	}
	if q.FreeShippingRemaining > 0 {
		v.Hint = freeShippingHint
	}
	return v
}

type addItemRequest struct {
	ProductID int  `json:"productId"`
	Quantity  *int `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) writeCart(w http.ResponseWriter, r *http.Request, sess *cart.Session, st cart.State) {
	middleware.WriteAPIResponse(w, r, http.StatusOK, newCartView(st), sess.Notices.Drain())
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	s.writeCart(w, r, sess, sess.Cart.State())
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	s.writeCart(w, r, sess, sess.Cart.Clear())
}

// handleAddItem adds a catalog product. Only the id and quantity come from
// the client; name, price and the rest are taken from the catalog.
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 {
		writeInvalidQuantity(w, r, "La cantidad debe ser al menos 1")
		return
	}

	p, ok := s.catalog.ProductByID(req.ProductID)
	if !ok {
		writeProductNotFound(w, r)
		return
	}

	sess := s.session(r)
	st, ok := sess.Cart.AddItemWithin(itemFromProduct(p, quantity), p.Stock)
	if !ok {
		writeInsufficientStock(w, r, p)
		return
	}
	s.writeCart(w, r, sess, st)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeItemNotInCart(w, r)
		return
	}

	var req updateItemRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}
	if req.Quantity < 0 {
		writeInvalidQuantity(w, r, "La cantidad no puede ser negativa")
		return
	}

	sess := s.session(r)
	if _, found := sess.Cart.State().Find(id); !found {
		writeItemNotInCart(w, r)
		return
	}

	if req.Quantity == 0 {
		s.writeCart(w, r, sess, sess.Cart.RemoveItem(id))
		return
	}
	if p, ok := s.catalog.ProductByID(id); ok && req.Quantity > p.Stock {
		writeInsufficientStock(w, r, p)
		return
	}

	s.writeCart(w, r, sess, sess.Cart.UpdateQuantity(id, req.Quantity))
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeItemNotInCart(w, r)
		return
	}
	sess := s.session(r)
	s.writeCart(w, r, sess, sess.Cart.RemoveItem(id))
}

func itemFromProduct(p catalog.Product, quantity int) cart.Item {
	return cart.Item{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Image:    p.Image,
		Weight:   p.Weight,
		Quantity: quantity,
	}
}

func writeInvalidQuantity(w http.ResponseWriter, r *http.Request, msg string) {
	middleware.WriteError(w, r, http.StatusBadRequest, middleware.APIError{
		Code:    "invalid_quantity",
		Message: msg,
		Fields:  map[string]string{"quantity": msg},
	})
}

func writeInsufficientStock(w http.ResponseWriter, r *http.Request, p catalog.Product) {
	middleware.WriteError(w, r, http.StatusConflict, middleware.APIError{
		Code:    "insufficient_stock",
		Message: "Stock insuficiente",
		Details: fmt.Sprintf("Solo hay %d unidades disponibles de %s", p.Stock, p.Name),
	})
}

func writeItemNotInCart(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPIError(w, r, http.StatusNotFound, "item_not_in_cart",
		"El producto no está en el carrito", "")
}
