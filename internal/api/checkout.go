package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"storefront/internal/cart"
	"storefront/internal/form"
	"storefront/internal/logger"
	"storefront/internal/middleware"
	"storefront/internal/order"
	"storefront/internal/security"
)

type checkoutResult struct {
	OrderID      string             `json:"orderId"`
	Redirect     string             `json:"redirect"`
	Confirmation order.Confirmation `json:"confirmation"`
}

// handleCheckout turns the session cart into an order.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	stats := s.guard.Counters()
	s.guard.Count(&stats.TotalSubmissions, "total_submissions")

	clientIP := logger.GetClientIP(r)
	if !s.guard.Allow(clientIP) {
		s.guard.Count(&stats.RateLimitBlocks, "rate_limit_blocks")
		logger.LogWarn("Checkout rate limited for %s", clientIP)
		middleware.WriteAPIError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded",
			"Too many requests. Please wait before trying again.", "")
		return
	}

	if !s.csrf.Validate(r.Header.Get(security.CSRFHeader)) {
		s.guard.Count(&stats.CSRFFailures, "csrf_failures")
		logger.LogWarn("Invalid CSRF token on checkout from %s", clientIP)
		middleware.WriteAPIError(w, r, http.StatusForbidden, "invalid_csrf_token",
			"Invalid or expired security token", "")
		return
	}

	var c form.Checkout
	if err := middleware.ParseJSONRequest(r, &c); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	c.Normalize()
	if errs := form.Validate(c); len(errs) > 0 {
		s.guard.Count(&stats.ValidationFailures, "validation_failures")
		writeFormErrors(w, r, errs)
		return
	}

	sess := s.session(r)
	state := sess.Cart.State()
	if len(state.Items) == 0 {
		writeEmptyCart(w, r)
		return
	}

	key := form.SubmissionKey(c, cartFingerprint(state))
	if s.guard.Duplicate(key) {
		s.guard.Count(&stats.DuplicateBlocks, "duplicate_blocks")
		logger.LogWarn("Duplicate checkout blocked for %s", clientIP)
		middleware.WriteAPIError(w, r, http.StatusConflict, "duplicate_submission",
			"Este pedido ya fue enviado", "")
		return
	}

	o, err := s.orders.PlaceOrder(r.Context(), sess.Cart, c)
	if err != nil {
		// a failed attempt must not block the retry
		s.guard.Forget(key)
	}
	var verr *order.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		writeFormErrors(w, r, verr.Fields)
		return
	case errors.Is(err, order.ErrEmptyCart):
		writeEmptyCart(w, r)
		return
	default:
		logger.LogHTTPError(r, http.StatusInternalServerError, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "order_failed",
			"Error al procesar el pedido", "Ha ocurrido un error. Por favor intenta nuevamente.")
		return
	}

	s.guard.Count(&stats.SuccessfulSubmissions, "successful_submissions")
	middleware.WriteAPIResponse(w, r, http.StatusCreated, checkoutResult{
		OrderID:      o.ID,
		Redirect:     "/confirmacion?orderId=" + url.QueryEscape(o.ID),
		Confirmation: order.NewConfirmation(*o),
	}, sess.Notices.Drain())
}

func (s *Server) handleCheckoutStats(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, s.guard.Stats())
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	s.writeConfirmation(w, r, r.PathValue("id"))
}

func (s *Server) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	s.writeConfirmation(w, r, r.URL.Query().Get("orderId"))
}

func (s *Server) writeConfirmation(w http.ResponseWriter, r *http.Request, id string) {
	o, err := s.orders.Lookup(r.Context(), id)
	if errors.Is(err, order.ErrNotFound) {
		middleware.WriteError(w, r, http.StatusNotFound, middleware.APIError{
			Code:     "order_not_found",
			Message:  "Pedido no encontrado",
			Redirect: "/",
		})
		return
	}
	if err != nil {
		logger.LogHTTPError(r, http.StatusInternalServerError, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error",
			"An internal error occurred", "")
		return
	}
	middleware.WriteAPISuccess(w, r, order.NewConfirmation(*o))
}

func writeFormErrors(w http.ResponseWriter, r *http.Request, errs form.Errors) {
	middleware.WriteError(w, r, http.StatusBadRequest, middleware.APIError{
		Code:    "invalid_form",
		Message: "Error en el formulario",
		Details: "Por favor completa todos los campos requeridos",
		Fields:  errs,
	})
}

func writeEmptyCart(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, r, http.StatusBadRequest, middleware.APIError{
		Code:     "empty_cart",
		Message:  "Tu carrito está vacío",
		Redirect: "/productos",
	})
}

func cartFingerprint(st cart.State) string {
	parts := make([]string, 0, len(st.Items))
	for _, it := range st.Items {
		parts = append(parts, fmt.Sprintf("%dx%d", it.ID, it.Quantity))
	}
	return strings.Join(parts, ",")
}
