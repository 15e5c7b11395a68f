// mock_sheets.go - spreadsheet values API stand-in for integration tests
package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

const (
	MockSpreadsheetID = "test-sheet"
	MockAPIKey        = "test-key"
)

// MockSheetsService serves a single values range.
type MockSheetsService struct {
	Server *httptest.Server
	mu     sync.RWMutex

	rows [][]interface{}

	// Configuration for failure simulation
	FailStatus   int
	FailMessage  string
	NetworkDelay time.Duration

	// Counters for tracking
	Requests int
}

// NewMockSheetsService starts a server answering with rows.
func NewMockSheetsService(rows [][]interface{}) *MockSheetsService {
	mock := &MockSheetsService{rows: rows}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v4/spreadsheets/{id}/values/{range}", mock.handleValues)
	mock.Server = httptest.NewServer(mux)

	return mock
}

func (m *MockSheetsService) Close() {
	m.Server.Close()
}

func (m *MockSheetsService) URL() string {
	return m.Server.URL
}

// SetRows replaces the sheet contents.
func (m *MockSheetsService) SetRows(rows [][]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = rows
}

// Fail makes every request answer with status and an API error body.
// A zero status restores normal answers.
func (m *MockSheetsService) Fail(status int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailStatus = status
	m.FailMessage = message
}

func (m *MockSheetsService) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Requests
}

func (m *MockSheetsService) handleValues(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.Requests++
	rows := m.rows
	status, message, delay := m.FailStatus, m.FailMessage, m.NetworkDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if r.PathValue("id") != MockSpreadsheetID || r.URL.Query().Get("key") != MockAPIKey {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(errorBody(http.StatusForbidden, "The caller does not have permission"))
		return
	}

	if status != 0 {
		w.WriteHeader(status)
		if message != "" {
			json.NewEncoder(w).Encode(errorBody(status, message))
		}
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"range":          r.PathValue("range"),
		"majorDimension": "ROWS",
		"values":         rows,
	})
}

func errorBody(code int, message string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
			"status":  http.StatusText(code),
		},
	}
}
