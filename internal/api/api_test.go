package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/data"
	"storefront/internal/order"
	"storefront/internal/predictions"
	"storefront/internal/security"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "storefront-api-*")
	if err != nil {
		panic(err)
	}
	if err := data.Open(filepath.Join(dir, "api.db")); err != nil {
		panic(err)
	}

	code := m.Run()

	data.CloseDB()
	os.RemoveAll(dir)
	os.Exit(code)
}

type envelope struct {
	Success  bool              `json:"success"`
	Data     json.RawMessage   `json:"data"`
	Notices  []json.RawMessage `json:"notices"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Details  string            `json:"details"`
	Fields   map[string]string `json:"fields"`
	Redirect string            `json:"redirect"`
}

type harness struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
	api    *Server
	csrf   *security.CSRFStore
	carts  *cart.Registry
}

func newHarness(t *testing.T, picks *predictions.Loader) *harness {
	t.Helper()
	return newHarnessWithOrders(t, picks, data.NewOrderRepository())
}

func newHarnessWithOrders(t *testing.T, picks *predictions.Loader, orders order.Repository) *harness {
	t.Helper()

	cat := catalog.NewService()
	require.NoError(t, cat.Load(""))

	carts := cart.NewRegistry(data.NewKVRepository())
	t.Cleanup(carts.Close)

	csrf := security.NewCSRFStore(security.DefaultCSRFTTL)
	s := NewServer(Deps{
		Catalog:   cat,
		Carts:     carts,
		Picks:     picks,
		Orders:    order.NewRecorder(orders),
		CSRF:      csrf,
		Messaging: Messaging{Number: "529518393782", PremiumMessage: "Hola!, quiero Información"},
		Ping:      data.Ping,
	})

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &harness{t: t, srv: srv, client: &http.Client{Jar: jar}, api: s, csrf: csrf, carts: carts}
}

func (h *harness) do(method, path, body string, headers ...string) (int, envelope) {
	h.t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(h.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := h.client.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(h.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	status, _ := h.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestProductsFilterAndSort(t *testing.T) {
	h := newHarness(t, nil)

	status, env := h.do(http.MethodGet, "/api/products?q=lomo&category=all&sort=price-asc", "")
	require.Equal(t, http.StatusOK, status)
	products := decode[[]catalog.Product](t, env.Data)
	require.Len(t, products, 1)
	assert.Equal(t, "Lomo Fino", products[0].Name)

	status, env = h.do(http.MethodGet, "/api/products?category=cerdo&sort=price-desc", "")
	require.Equal(t, http.StatusOK, status)
	products = decode[[]catalog.Product](t, env.Data)
	require.Len(t, products, 2)
	assert.GreaterOrEqual(t, products[0].Price, products[1].Price)

	status, env = h.do(http.MethodGet, "/api/products?sort=cheapest", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_sort", env.Code)
}

func TestProductDetail(t *testing.T) {
	h := newHarness(t, nil)

	status, env := h.do(http.MethodGet, "/api/products/2", "")
	require.Equal(t, http.StatusOK, status)
	detail := decode[productDetail](t, env.Data)
	assert.Equal(t, "Lomo Fino", detail.Product.Name)
	assert.LessOrEqual(t, len(detail.Related), relatedLimit)
	for _, p := range detail.Related {
		assert.Equal(t, detail.Product.Category, p.Category)
		assert.NotEqual(t, detail.Product.ID, p.ID)
	}

	for _, path := range []string{"/api/products/999", "/api/products/abc"} {
		status, env = h.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, status, path)
		assert.Equal(t, "/productos", env.Redirect, path)
	}
}

func TestCategoriesAndPopular(t *testing.T) {
	h := newHarness(t, nil)

	_, env := h.do(http.MethodGet, "/api/categories", "")
	assert.Len(t, decode[[]catalog.Category](t, env.Data), 5)

	_, env = h.do(http.MethodGet, "/api/products/popular", "")
	for _, p := range decode[[]catalog.Product](t, env.Data) {
		assert.True(t, p.Popular)
	}
}

func TestCartLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	status, env := h.do(http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, status)
	view := decode[cartView](t, env.Data)
	assert.Empty(t, view.Items)
	assert.Equal(t, freeShippingHint, view.Hint)

	status, env = h.do(http.MethodPost, "/api/cart/items", `{"productId": 2, "quantity": 1}`)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, env.Notices, 1)
	assert.Contains(t, string(env.Notices[0]), "Producto añadido")

	_, env = h.do(http.MethodPost, "/api/cart/items", `{"productId": 2}`)
	view = decode[cartView](t, env.Data)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.Equal(t, 2, view.ItemCount)

	status, env = h.do(http.MethodPatch, "/api/cart/items/2", `{"quantity": 3}`)
	require.Equal(t, http.StatusOK, status)
	view = decode[cartView](t, env.Data)
	assert.Equal(t, 3, view.Items[0].Quantity)
	assert.Empty(t, env.Notices, "quantity changes raise no notice")

	status, env = h.do(http.MethodPatch, "/api/cart/items/2", `{"quantity": 0}`)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[cartView](t, env.Data).Items)
	require.Len(t, env.Notices, 1)
	assert.Contains(t, string(env.Notices[0]), "Producto eliminado")
}

func TestCartGuards(t *testing.T) {
	h := newHarness(t, nil)

	status, env := h.do(http.MethodPost, "/api/cart/items", `{"productId": 999}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "/productos", env.Redirect)

	status, env = h.do(http.MethodPost, "/api/cart/items", `{"productId": 2, "quantity": -1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_quantity", env.Code)

	status, env = h.do(http.MethodPost, "/api/cart/items", `{"productId": 2, "quantity": 0}`)
	assert.Equal(t, http.StatusBadRequest, status, "an explicit zero is not the default")
	assert.Equal(t, "invalid_quantity", env.Code)

	status, env = h.do(http.MethodPost, "/api/cart/items", `{"productId": 2, "quantity": 1000}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "insufficient_stock", env.Code)

	status, env = h.do(http.MethodPost, "/api/cart/items", `{"productId": 2, "price": 0.01}`)
	assert.Equal(t, http.StatusBadRequest, status, "clients cannot set the price")

	status, _ = h.do(http.MethodPatch, "/api/cart/items/5", `{"quantity": 1}`)
	assert.Equal(t, http.StatusNotFound, status)

	h.do(http.MethodPost, "/api/cart/items", `{"productId": 2}`)
	status, env = h.do(http.MethodPatch, "/api/cart/items/2", `{"quantity": -4}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = h.do(http.MethodDelete, "/api/cart", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[cartView](t, env.Data).Items)
}

func TestCartsAreIsolatedPerSession(t *testing.T) {
	h := newHarness(t, nil)
	h.do(http.MethodPost, "/api/cart/items", `{"productId": 2}`)

	other, err := cookiejar.New(nil)
	require.NoError(t, err)
	h2 := *h
	h2.client = &http.Client{Jar: other}

	_, env := h2.do(http.MethodGet, "/api/cart", "")
	assert.Empty(t, decode[cartView](t, env.Data).Items)
	assert.Equal(t, 2, h.carts.Len())
}

func (h *harness) csrfToken() string {
	h.t.Helper()
	token, err := h.csrf.Generate()
	require.NoError(h.t, err)
	return token
}

const checkoutBody = `{
	"firstName": "Ana", "lastName": "López", "email": "ana@example.com",
	"phone": "951 123 4567", "address": "Calle Reforma 10", "city": "Oaxaca",
	"postalCode": "68000", "paymentMethod": "cash", "deliveryTime": "express"
}`

func TestCheckoutFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.do(http.MethodPost, "/api/cart/items", `{"productId": 2, "quantity": 3}`)

	status, env := h.do(http.MethodPost, "/api/checkout", checkoutBody,
		security.CSRFHeader, h.csrfToken(), "X-Forwarded-For", "10.1.0.1")
	require.Equal(t, http.StatusCreated, status, env.Message)

	res := decode[checkoutResult](t, env.Data)
	assert.True(t, strings.HasPrefix(res.OrderID, "ORD-"))
	assert.Equal(t, "/confirmacion?orderId="+res.OrderID, res.Redirect)
	assert.Equal(t, "processing", res.Confirmation.Order.Status)
	assert.Equal(t, order.ExpressSurcharge, res.Confirmation.Order.Shipping)
	assert.Equal(t, res.Confirmation.Order.Date.Add(3*time.Hour), res.Confirmation.EstimatedDelivery)

	_, env = h.do(http.MethodGet, "/api/cart", "")
	assert.Empty(t, decode[cartView](t, env.Data).Items, "cart is cleared")

	status, env = h.do(http.MethodGet, "/api/confirmation?orderId="+res.OrderID, "")
	require.Equal(t, http.StatusOK, status)
	conf := decode[order.Confirmation](t, env.Data)
	assert.Equal(t, res.OrderID, conf.Order.ID)
	assert.Equal(t, 3, conf.ItemCount)
	assert.Equal(t, 68.97, conf.Order.Subtotal)
	assert.Equal(t, 73.96, conf.Order.Total)

	status, _ = h.do(http.MethodGet, "/api/orders/"+res.OrderID, "")
	assert.Equal(t, http.StatusOK, status)
}

func TestCheckoutRejections(t *testing.T) {
	h := newHarness(t, nil)

	status, env := h.do(http.MethodPost, "/api/checkout", checkoutBody, "X-Forwarded-For", "10.2.0.1")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "invalid_csrf_token", env.Code)

	status, env = h.do(http.MethodPost, "/api/checkout", checkoutBody,
		security.CSRFHeader, h.csrfToken(), "X-Forwarded-For", "10.2.0.1")
	assert.Equal(t, http.StatusTooManyRequests, status)

	status, env = h.do(http.MethodPost, "/api/checkout", checkoutBody,
		security.CSRFHeader, h.csrfToken(), "X-Forwarded-For", "10.2.0.2")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "empty_cart", env.Code)
	assert.Equal(t, "/productos", env.Redirect)

	h.do(http.MethodPost, "/api/cart/items", `{"productId": 1}`)
	bad := strings.Replace(checkoutBody, `"ana@example.com"`, `""`, 1)
	status, env = h.do(http.MethodPost, "/api/checkout", bad,
		security.CSRFHeader, h.csrfToken(), "X-Forwarded-For", "10.2.0.3")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Error en el formulario", env.Message)
	assert.Equal(t, "El email es requerido", env.Fields["email"])

	_, env = h.do(http.MethodGet, "/api/cart", "")
	assert.Len(t, decode[cartView](t, env.Data).Items, 1, "failed checkout keeps the cart")

	stats := h.api.guard.Stats()
	assert.Equal(t, 4, stats.TotalSubmissions)
	assert.Equal(t, 1, stats.CSRFFailures)
	assert.Equal(t, 1, stats.RateLimitBlocks)
	assert.Equal(t, 1, stats.ValidationFailures)
}

// flakyOrders fails every insert until recovered.
type flakyOrders struct {
	order.Repository
	failing atomic.Bool
}

func (f *flakyOrders) Insert(ctx context.Context, o data.Order) error {
	if f.failing.Load() {
		return errors.New("database is locked")
	}
	return f.Repository.Insert(ctx, o)
}

func TestCheckoutRetryAfterFailedSave(t *testing.T) {
	repo := &flakyOrders{Repository: data.NewOrderRepository()}
	repo.failing.Store(true)
	h := newHarnessWithOrders(t, nil, repo)
	h.do(http.MethodPost, "/api/cart/items", `{"productId": 2, "quantity": 3}`)

	status, env := h.do(http.MethodPost, "/api/checkout", checkoutBody,
		security.CSRFHeader, h.csrfToken(), "X-Forwarded-For", "10.4.0.1")
	require.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "order_failed", env.Code)

	_, env = h.do(http.MethodGet, "/api/cart", "")
	assert.Len(t, decode[cartView](t, env.Data).Items, 1, "failed save keeps the cart")

	repo.failing.Store(false)
	status, env = h.do(http.MethodPost, "/api/checkout", checkoutBody,
		security.CSRFHeader, h.csrfToken(), "X-Forwarded-For", "10.4.0.2")
	require.Equal(t, http.StatusCreated, status, env.Code)
	assert.Equal(t, 0, h.api.guard.Stats().DuplicateBlocks)

	status, env = h.do(http.MethodPost, "/api/checkout", checkoutBody,
		security.CSRFHeader, h.csrfToken(), "X-Forwarded-For", "10.4.0.3")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "empty_cart", env.Code)
}

func TestConcurrentAddsRespectStock(t *testing.T) {
	h := newHarness(t, nil)
	h.do(http.MethodGet, "/api/cart", "")

	p, ok := h.api.catalog.ProductByID(2)
	require.True(t, ok)

	var wg sync.WaitGroup
	for i := 0; i < p.Stock+5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := h.client.Post(h.srv.URL+"/api/cart/items", "application/json",
				strings.NewReader(`{"productId": 2}`))
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	_, env := h.do(http.MethodGet, "/api/cart", "")
	assert.Equal(t, p.Stock, decode[cartView](t, env.Data).ItemCount)
}

func TestConfirmationUnknownOrder(t *testing.T) {
	h := newHarness(t, nil)

	for _, path := range []string{"/api/confirmation", "/api/confirmation?orderId=ORD-NOPE", "/api/orders/ORD-NOPE"} {
		status, env := h.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, status, path)
		assert.Equal(t, "/", env.Redirect, path)
	}
}

func TestPicksWithoutSource(t *testing.T) {
	h := newHarness(t, nil)

	status, env := h.do(http.MethodGet, "/api/picks/free", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[picksView](t, env.Data).Predictions)

	status, env = h.do(http.MethodPost, "/api/picks/reload", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestPicksFromSheet(t *testing.T) {
	sheet := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"values": [
			["match", "pick", "odds", "isfree", "status"],
			["América vs Chivas", "Over 2.5", "2,50", "TRUE", "won"],
			["Pumas vs Tigres", "Empate", "3.10", "false", ""]
		]}`))
	}))
	defer sheet.Close()

	loader := predictions.NewLoader(predictions.Source{
		BaseURL: sheet.URL, SpreadsheetID: "id", Sheet: "Sheet1", Range: "A:F", APIKey: "k",
	})
	defer loader.Close()
	_, err := loader.Load(context.Background())
	require.NoError(t, err)

	h := newHarness(t, loader)

	_, env := h.do(http.MethodGet, "/api/picks/free", "")
	var free struct {
		Predictions []map[string]interface{} `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &free))
	require.Len(t, free.Predictions, 1)
	assert.Equal(t, "América vs Chivas", free.Predictions[0]["match"])
	assert.Equal(t, 2.5, free.Predictions[0]["odds"])

	_, env = h.do(http.MethodGet, "/api/picks/premium", "")
	require.NoError(t, json.Unmarshal(env.Data, &free))
	require.Len(t, free.Predictions, 1)
	assert.Equal(t, "pending", free.Predictions[0]["status"])

	status, env := h.do(http.MethodPost, "/api/picks/reload", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &free))
	assert.Len(t, free.Predictions, 2)

	status, _ = h.do(http.MethodPost, "/api/picks/reload", "")
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestUnlockLink(t *testing.T) {
	h := newHarness(t, nil)

	_, env := h.do(http.MethodGet, "/api/picks/premium/unlock", "")
	link := decode[map[string]string](t, env.Data)
	assert.Equal(t, "https://wa.me/529518393782?text=Hola!%2C%20quiero%20Informaci%C3%B3n", link["url"])
}
