// Package api exposes the storefront over JSON HTTP endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/form"
	"storefront/internal/middleware"
	"storefront/internal/order"
	"storefront/internal/predictions"
	"storefront/internal/security"
)

const (
	checkoutRateLimit    = 3 * time.Second
	duplicateWindow      = 2 * time.Minute
	picksReloadRateLimit = 2 * time.Second
)

// Messaging holds the premium unlock contact.
type Messaging struct {
	Number         string
	PremiumMessage string
}

// Deps are the components the server routes requests to.
// Picks may be nil when no spreadsheet is configured.
type Deps struct {
	Catalog   *catalog.Service
	Carts     *cart.Registry
	Picks     *predictions.Loader
	Orders    *order.Recorder
	CSRF      *security.CSRFStore
	Messaging Messaging
	Ping      func(ctx context.Context) error
}

type Server struct {
	catalog   *catalog.Service
	carts     *cart.Registry
	picks     *predictions.Loader
	orders    *order.Recorder
	csrf      *security.CSRFStore
	guard     *form.Guard
	reload    *middleware.RateLimiter
	messaging Messaging
	ping      func(ctx context.Context) error
}

func NewServer(d Deps) *Server {
	csrf := d.CSRF
	if csrf == nil {
		csrf = security.NewCSRFStore(security.DefaultCSRFTTL)
	}
	return &Server{
		catalog:   d.Catalog,
		carts:     d.Carts,
		picks:     d.Picks,
		orders:    d.Orders,
		csrf:      csrf,
		guard:     form.NewGuard(checkoutRateLimit, duplicateWindow),
		reload:    middleware.NewRateLimiter(picksReloadRateLimit),
		messaging: d.Messaging,
		ping:      d.Ping,
	}
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	api := middleware.APIMiddleware
	session := func(h http.HandlerFunc) http.HandlerFunc { return api(middleware.Session(h)) }

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/products", api(s.handleProducts))
	mux.HandleFunc("GET /api/products/popular", api(s.handlePopularProducts))
	mux.HandleFunc("GET /api/products/{id}", api(s.handleProduct))
	mux.HandleFunc("GET /api/categories", api(s.handleCategories))

	mux.HandleFunc("GET /api/cart", session(s.handleGetCart))
	mux.HandleFunc("DELETE /api/cart", session(s.handleClearCart))
	mux.HandleFunc("POST /api/cart/items", session(s.handleAddItem))
	mux.HandleFunc("PATCH /api/cart/items/{id}", session(s.handleUpdateItem))
	mux.HandleFunc("DELETE /api/cart/items/{id}", session(s.handleRemoveItem))

	mux.HandleFunc("GET /api/picks/free", api(s.handleFreePicks))
	mux.HandleFunc("GET /api/picks/premium", api(s.handlePremiumPicks))
	mux.HandleFunc("POST /api/picks/reload", api(s.reload.Limit(s.handleReloadPicks)))
	mux.HandleFunc("GET /api/picks/premium/unlock", api(s.handleUnlock))

	mux.HandleFunc("GET /api/csrf-token", api(s.csrf.TokenHandler))
	mux.HandleFunc("POST /api/checkout", session(s.handleCheckout))
	mux.HandleFunc("GET /api/checkout/stats", api(s.handleCheckoutStats))

	mux.HandleFunc("GET /api/orders/{id}", api(s.handleOrder))
	mux.HandleFunc("GET /api/confirmation", api(s.handleConfirmation))

	return mux
}

// Sweep forgets expired rate-limit and duplicate entries.
func (s *Server) Sweep() {
	s.guard.Sweep()
	s.reload.Sweep()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// session returns the caller's cart session.
func (s *Server) session(r *http.Request) *cart.Session {
	return s.carts.Get(r.Context(), middleware.GetSessionID(r.Context()))
}
