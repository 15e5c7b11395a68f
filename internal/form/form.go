// internal/form/form.go
package form

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/logger"
)

const (
	PaymentCard  = "card"
	PaymentCash  = "cash"
	DeliveryStd  = "standard"
	DeliveryExpr = "express"
)

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// Checkout is the flat checkout form.
type Checkout struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	City          string `json:"city"`
	PostalCode    string `json:"postalCode"`
	PaymentMethod string `json:"paymentMethod"`
	DeliveryTime  string `json:"deliveryTime"`
	Notes         string `json:"notes"`
}

// Normalize trims every field and fills the option defaults.
func (c *Checkout) Normalize() {
	for _, f := range []*string{
		&c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Address,
		&c.City, &c.PostalCode, &c.PaymentMethod, &c.DeliveryTime, &c.Notes,
	} {
		*f = strings.TrimSpace(*f)
	}
	c.PaymentMethod = strings.ToLower(c.PaymentMethod)
	c.DeliveryTime = strings.ToLower(c.DeliveryTime)
	if c.PaymentMethod == "" {
		c.PaymentMethod = PaymentCard
	}
	if c.DeliveryTime == "" {
		c.DeliveryTime = DeliveryStd
	}
}

// Errors maps a form field to its message.
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "invalid fields: " + strings.Join(fields, ", ")
}

// Validate checks c; an empty result means the form can be submitted.
func Validate(c Checkout) Errors {
	errs := Errors{}

	required := []struct {
		field, value, message string
	}{
		{"firstName", c.FirstName, "El nombre es requerido"},
		{"lastName", c.LastName, "El apellido es requerido"},
		{"phone", c.Phone, "El teléfono es requerido"},
		{"address", c.Address, "La dirección es requerida"},
		{"city", c.City, "La ciudad es requerida"},
		{"postalCode", c.PostalCode, "El código postal es requerido"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs[r.field] = r.message
		}
	}

	switch {
	case strings.TrimSpace(c.Email) == "":
		errs["email"] = "El email es requerido"
	case !emailPattern.MatchString(c.Email):
		errs["email"] = "Email inválido"
	}

	switch c.PaymentMethod {
	case "", PaymentCard, PaymentCash:
	default:
		errs["paymentMethod"] = "Método de pago inválido"
	}

	switch c.DeliveryTime {
	case "", DeliveryStd, DeliveryExpr:
	default:
		errs["deliveryTime"] = "Tiempo de entrega inválido"
	}

	return errs
}

// SubmissionKey identifies a customer for duplicate detection.
func SubmissionKey(c Checkout, cartFingerprint string) string {
	base := strings.ToLower(strings.TrimSpace(c.Email)) + "|" +
		strings.ToLower(strings.TrimSpace(c.FirstName+" "+c.LastName)) + "|" +
		cartFingerprint
	return fmt.Sprintf("%x", sha256.Sum256([]byte(base)))
}

// Guard blocks rapid resubmission per client IP and repeated identical checkouts.
type Guard struct {
	mu                 sync.Mutex
	rateLimiter        map[string]time.Time
	recentSubmissions  map[string]time.Time
	rateLimitDuration  time.Duration
	duplicateThreshold time.Duration
	now                func() time.Time

	stats Stats
}

type Stats struct {
	TotalSubmissions      int `json:"totalSubmissions"`
	SuccessfulSubmissions int `json:"successfulSubmissions"`
	CSRFFailures          int `json:"csrfFailures"`
	RateLimitBlocks       int `json:"rateLimitBlocks"`
	DuplicateBlocks       int `json:"duplicateBlocks"`
	ValidationFailures    int `json:"validationFailures"`
}

func NewGuard(rateLimit, duplicateWindow time.Duration) *Guard {
	return &Guard{
		rateLimiter:        make(map[string]time.Time),
		recentSubmissions:  make(map[string]time.Time),
		rateLimitDuration:  rateLimit,
		duplicateThreshold: duplicateWindow,
		now:                time.Now,
	}
}

// Allow records an attempt from ip and reports whether it may proceed.
func (g *Guard) Allow(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.rateLimiter[ip]; ok && now.Sub(last) < g.rateLimitDuration {
		return false
	}
	g.rateLimiter[ip] = now
	return true
}

// Duplicate reports whether key was submitted within the window, and records it if not.
func (g *Guard) Duplicate(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.recentSubmissions[key]; ok && now.Sub(last) < g.duplicateThreshold {
		return true
	}
	g.recentSubmissions[key] = now
	return false
}

// Forget drops key so the same submission can be retried at once.
func (g *Guard) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.recentSubmissions, key)
}

// Sweep forgets entries older than both windows.
func (g *Guard) Sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for ip, t := range g.rateLimiter {
		if now.Sub(t) >= g.rateLimitDuration {
			delete(g.rateLimiter, ip)
		}
	}
	for key, t := range g.recentSubmissions {
		if now.Sub(t) >= g.duplicateThreshold {
			delete(g.recentSubmissions, key)
		}
	}
}

// Count increments one counter and logs the new value.
func (g *Guard) Count(stat *int, label string) {
	g.mu.Lock()
	*stat++
	count := *stat
	g.mu.Unlock()
	logger.LogInfo("Stat update: %s = %d", label, count)
}

// Counters exposes the counter fields for Count.
func (g *Guard) Counters() *Stats {
	return &g.stats
}

func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}
