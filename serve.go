package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"storefront/internal/api"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/cleanup"
	"storefront/internal/config"
	"storefront/internal/data"
	"storefront/internal/logger"
	"storefront/internal/notify"
	"storefront/internal/order"
	"storefront/internal/predictions"
	"storefront/internal/security"
)

const guardSweepInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

type App struct {
	addr          string
	mux           *http.ServeMux
	cors          func(http.Handler) http.Handler
	timeout       time.Duration
	connections   sync.WaitGroup
	totalRequests int64
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.LogInfo("Environment and paths loaded. Logger ready.")
	config.LogCurrentEnvironment(cfg)
	cfg.LogCORS()

	// Step 3: Open the database
	if err := data.Open(cfg.Database.Path); err != nil {
		logger.LogFatal("Failed to open database: %v", err)
	}
	defer data.CloseDB()

	// Step 4: Load the catalog
	products := catalog.NewService()
	if err := products.Load(cfg.Catalog.Path); err != nil {
		logger.LogFatal("Failed to load catalog: %v", err)
	}
	stats := products.GetStats()
	logger.LogInfo("Catalog loaded from %s: %d products in %d categories", stats.Source, stats.Products, stats.Categories)

	// Step 5: Wire services
	kv := data.NewKVRepository()
	carts := cart.NewRegistry(kv)
	defer carts.Close()

	picks := newPicksLoader(cfg)
	if picks != nil {
		defer picks.Close()
	}

	csrf := security.NewCSRFStore(security.DefaultCSRFTTL)
	server := api.NewServer(api.Deps{
		Catalog: products,
		Carts:   carts,
		Picks:   picks,
		Orders:  order.NewRecorder(data.NewOrderRepository()),
		CSRF:    csrf,
		Messaging: api.Messaging{
			Number:         cfg.Messaging.Number,
			PremiumMessage: cfg.Messaging.PremiumMessage,
		},
		Ping: data.Ping,
	})

	app := &App{
		addr:    cfg.Address(),
		mux:     server.Routes(),
		cors:    security.CORS(cfg.CORS.AllowedOrigin),
		timeout: cfg.Server.RequestTimeout,
	}

	routine := &cleanup.Routine{
		Hour:          cfg.Cleanup.Hour,
		CartRetention: cfg.Cleanup.CartRetention,
		SessionIdle:   cfg.Cleanup.SessionIdle,
		Store:         kv,
		Sessions:      carts,
	}

	// Step 6: Start background tasks
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return app.Run(gctx, cfg.Server.ShutdownTimeout) })
	g.Go(func() error { return csrf.CleanExpiredTokens(gctx) })
	g.Go(func() error { return routine.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(guardSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				server.Sweep()
			}
		}
	})
	if picks != nil {
		g.Go(func() error {
			if _, err := picks.Load(gctx); err != nil {
				logger.LogWarn("Initial predictions load failed: %v", err)
			}
			return nil
		})
	}
	if cfg.Catalog.Watch && cfg.Catalog.Path != "" {
		g.Go(func() error { return products.Watch(gctx, cfg.Catalog.Path) })
	}

	// Step 7: Run until a signal or a fatal error
	return g.Wait()
}

func newPicksLoader(cfg *config.Config) *predictions.Loader {
	if !cfg.SheetsEnabled() {
		logger.LogWarn("SHEETS_SPREADSHEET_ID or SHEETS_API_KEY not set, picks are disabled")
		return nil
	}
	return predictions.NewLoader(
		predictions.Source{
			BaseURL:       cfg.Sheets.BaseURL,
			SpreadsheetID: cfg.Sheets.SpreadsheetID,
			Sheet:         cfg.Sheets.Sheet,
			Range:         cfg.Sheets.Range,
			APIKey:        cfg.Sheets.APIKey,
		},
		predictions.WithHTTPClient(&http.Client{Timeout: cfg.Sheets.Timeout}),
		predictions.WithNotifier(notify.Func(func(n notify.Notice) {
			logger.LogWarn("Predictions notice: %s: %s", n.Title, n.Description)
		})),
	)
}

// Run serves until ctx is done, then shuts down gracefully.
func (a *App) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:         a.addr,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.LogInfo("Starting server on %s", a.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.LogError("Server failed: %v", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.LogInfo("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError("Server shutdown error: %v", err)
	}

	logger.LogInfo("Waiting for active connections to finish...")
	a.connections.Wait()
	logger.LogInfo("All connections closed. Total requests handled: %d", atomic.LoadInt64(&a.totalRequests))
	logger.LogInfo("Server shut down gracefully")
	return nil
}

// Handler assembles all middleware around the main mux
func (a *App) Handler() http.Handler {
	var handler http.Handler = a.mux

	handler = withCustom404(handler)
	handler = a.trackConnections(handler)
	if a.cors != nil {
		handler = a.cors(handler)
	}
	handler = logRequests(handler)
	if a.timeout > 0 {
		handler = withTimeout(handler, a.timeout)
	}

	return handler
}

// Middleware: timeout handler
func withTimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout, `{"code":"timeout","message":"Request timed out"}`)
}

// Middleware: log requests
func logRequests(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		h.ServeHTTP(w, r)

		logger.LogDebug("%s %s took %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Middleware: track active connections and total requests
func (a *App) trackConnections(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.connections.Add(1)
		atomic.AddInt64(&a.totalRequests, 1)
		defer a.connections.Done()

		h.ServeHTTP(w, r)
	})
}

// Middleware: JSON body for mux-level 404s. API handlers write their own
// error envelope, so only plain-text responses are replaced.
func withCustom404(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		crw := &captureResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		h.ServeHTTP(crw, r)

		if crw.swallowed {
			logger.LogInfo("404 not found: %s", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":"not_found","message":"Ruta no encontrada","redirect":"/"}`))
		}
	})
}

// captureResponseWriter holds back a plain-text 404 so it can be replaced.
type captureResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	swallowed  bool
}

func (crw *captureResponseWriter) WriteHeader(code int) {
	if crw.written {
		return
	}
	crw.statusCode = code
	crw.written = true
	if code == http.StatusNotFound && crw.Header().Get("Content-Type") != "application/json" {
		crw.swallowed = true
		return
	}
	crw.ResponseWriter.WriteHeader(code)
}

func (crw *captureResponseWriter) Write(b []byte) (int, error) {
	if !crw.written {
		crw.WriteHeader(http.StatusOK)
	}
	if crw.swallowed {
		return len(b), nil
	}
	return crw.ResponseWriter.Write(b)
}
