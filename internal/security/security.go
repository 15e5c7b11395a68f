// internal/security/security.go
package security

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"storefront/internal/logger"
	"storefront/internal/middleware"
)

const (
	CSRFHeader        = "X-CSRF-Token"
	DefaultCSRFTTL    = time.Hour
	csrfSweepInterval = 5 * time.Minute
)

// CSRFStore issues single-use tokens for state-changing form posts.
type CSRFStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewCSRFStore(ttl time.Duration) *CSRFStore {
	if ttl <= 0 {
		ttl = DefaultCSRFTTL
	}
	return &CSRFStore{
		tokens: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate creates and remembers a new token.
func (s *CSRFStore) Generate() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate CSRF token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	s.mu.Lock()
	s.tokens[token] = s.now().Add(s.ttl)
	s.mu.Unlock()

	return token, nil
}

// Validate consumes token and reports whether it was live.
func (s *CSRFStore) Validate(token string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.tokens[token]
	if !ok {
		return false
	}
	delete(s.tokens, token)
	return !s.now().After(expiry)
}

// Sweep removes expired tokens and returns how many were dropped.
func (s *CSRFStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, expiry := range s.tokens {
		if now.After(expiry) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed
}

func (s *CSRFStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// CleanExpiredTokens sweeps on a ticker until ctx is done.
func (s *CSRFStore) CleanExpiredTokens(ctx context.Context) error {
	ticker := time.NewTicker(csrfSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.LogInfo("CSRF token cleanup completed, %d expired tokens removed", n)
			}
		}
	}
}

// TokenHandler returns a fresh token in the API envelope.
func (s *CSRFStore) TokenHandler(w http.ResponseWriter, r *http.Request) {
	token, err := s.Generate()
	if err != nil {
		logger.LogError("%v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "csrf_unavailable",
			"Could not issue a security token", "")
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]string{"csrf_token": token})
}

// CORS adds CORS headers and handles OPTIONS requests globally.
func CORS(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+CSRFHeader)
			if allowedOrigin != "*" {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
