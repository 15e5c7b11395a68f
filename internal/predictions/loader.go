package predictions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storefront/internal/logger"
	"storefront/internal/notify"
)

const (
	defaultErrorMessage = "No se pudieron cargar los datos. Verifica la configuración de la API Key y el ID de la Hoja de Cálculo."
	maxResponseBytes    = 4 << 20
)

var (
	// ErrDiscarded is returned when the load was cancelled before its response was applied.
	ErrDiscarded = errors.New("predictions response discarded")
	ErrClosed    = errors.New("predictions loader closed")
)

// Source identifies the spreadsheet range to read.
type Source struct {
	BaseURL       string
	SpreadsheetID string
	Sheet         string
	Range         string
	APIKey        string
}

// URL is the values endpoint for the configured range.
func (s Source) URL() string {
	rng := s.Range
	if s.Sheet != "" {
		rng = s.Sheet + "!" + s.Range
	}
	q := url.Values{}
	q.Set("key", s.APIKey)
	return fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?%s",
		s.BaseURL, url.PathEscape(s.SpreadsheetID), url.PathEscape(rng), q.Encode())
}

// FetchError is a non-2xx answer from the spreadsheet API.
type FetchError struct {
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("Error %d: %s", e.StatusCode, e.Message)
}

type valuesResponse struct {
	Values [][]interface{} `json:"values"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Snapshot is the loader state at one instant.
type Snapshot struct {
	Predictions []Prediction   `json:"predictions"`
	Loading     bool           `json:"loading"`
	Notice      *notify.Notice `json:"notice,omitempty"`
	LoadedAt    time.Time      `json:"loadedAt"`
}

// Loader fetches the picks on demand. It performs no retries and keeps
// nothing between loads beyond the last applied result.
type Loader struct {
	client   *http.Client
	source   Source
	notifier notify.Notifier
	group    singleflight.Group

	lifetime context.Context
	cancel   context.CancelFunc

	mu       sync.RWMutex
	current  []Prediction
	loading  bool
	notice   *notify.Notice
	loadedAt time.Time
}

type Option func(*Loader)

func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

func WithNotifier(n notify.Notifier) Option {
	return func(l *Loader) { l.notifier = n }
}

func NewLoader(source Source, opts ...Option) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		client:   &http.Client{Timeout: 10 * time.Second},
		source:   source,
		notifier: notify.Discard,
		lifetime: ctx,
		cancel:   cancel,
		current:  []Prediction{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Close cancels any in-flight load; its response will not be applied.
func (l *Loader) Close() {
	l.cancel()
}

// Load reads the sheet once. Concurrent calls share the read started first.
// The fetch stops when ctx or the loader is cancelled, and a late response
// is discarded without touching state.
func (l *Loader) Load(ctx context.Context) ([]Prediction, error) {
	if l.lifetime.Err() != nil {
		return nil, ErrClosed
	}

	ch := l.group.DoChan("load", func() (interface{}, error) {
		return l.load(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Prediction), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loader) load(callerCtx context.Context) ([]Prediction, error) {
	ctx, cancel := context.WithCancel(callerCtx)
	defer cancel()
	stop := context.AfterFunc(l.lifetime, cancel)
	defer stop()

	l.mu.Lock()
	l.loading = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.loading = false
		l.mu.Unlock()
	}()

	rows, err := l.fetch(ctx)

	if ctx.Err() != nil {
		logger.LogWarn("Discarding predictions response: %v", ctx.Err())
		return nil, ErrDiscarded
	}

	if err != nil {
		logger.LogError("Error fetching predictions: %v", err)
		l.apply([]Prediction{}, &notify.Notice{
			Title:       "Error al cargar pronósticos",
			Description: err.Error(),
			Variant:     notify.Destructive,
		})
		return nil, err
	}

	if len(rows) <= 1 {
		l.apply([]Prediction{}, &notify.Notice{
			Title:       "Hoja de cálculo vacía o solo con encabezados",
			Description: `Asegúrate de que tu Google Sheet tenga datos de pronósticos y la columna "status".`,
			Variant:     notify.Default,
		})
		return []Prediction{}, nil
	}

	parsed := ParseRows(rows)
	l.apply(parsed, nil)
	logger.LogInfo("Loaded %d predictions from %d rows", len(parsed), len(rows)-1)
	return parsed, nil
}

func (l *Loader) apply(ps []Prediction, notice *notify.Notice) {
	l.mu.Lock()
	l.current = ps
	l.notice = notice
	l.loadedAt = time.Now()
	l.mu.Unlock()

	if notice != nil {
		l.notifier.Notify(*notice)
	}
}

func (l *Loader) fetch(ctx context.Context) ([][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.source.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		msg := defaultErrorMessage
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, &FetchError{StatusCode: resp.StatusCode, Message: msg}
	}

	var payload valuesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	rows := make([][]string, len(payload.Values))
	for i, row := range payload.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = cellString(v)
		}
		rows[i] = cells
	}
	return rows, nil
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Snapshot returns the current state.
func (l *Loader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ps := make([]Prediction, len(l.current))
	copy(ps, l.current)
	var notice *notify.Notice
	if l.notice != nil {
		n := *l.notice
		notice = &n
	}
	return Snapshot{Predictions: ps, Loading: l.loading, Notice: notice, LoadedAt: l.loadedAt}
}

func (l *Loader) Loading() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loading
}

func (l *Loader) Predictions() []Prediction {
	return l.Snapshot().Predictions
}

func (l *Loader) Free() []Prediction {
	return Free(l.Predictions())
}

func (l *Loader) Premium() []Prediction {
	return Premium(l.Predictions())
}
