package cleanup

import (
	"context"
	"time"

	"storefront/internal/logger"
)

const (
	maxDeletionPerRun = 100
	evictInterval     = 10 * time.Minute
	cartKeyPrefix     = "cart:"
)

// StaleDeleter removes saved values not touched since cutoff.
type StaleDeleter interface {
	DeleteStale(ctx context.Context, prefix string, cutoff time.Time, limit int) (int, error)
}

// IdleEvicter drops in-memory sessions not used since cutoff.
type IdleEvicter interface {
	EvictIdle(cutoff time.Time) int
}

// Routine removes abandoned saved carts once a day and evicts idle
// sessions every few minutes.
type Routine struct {
	Hour          int
	CartRetention time.Duration
	SessionIdle   time.Duration
	Store         StaleDeleter
	Sessions      IdleEvicter

	now func() time.Time
}

func (r *Routine) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// NextRun is the next occurrence of the cleanup hour after now.
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run blocks until ctx is done.
func (r *Routine) Run(ctx context.Context) error {
	logger.LogInfo("Cleanup routine started - will run daily at %d:00", r.Hour)

	evict := time.NewTicker(evictInterval)
	defer evict.Stop()

	for {
		next := NextRun(r.clock(), r.Hour)
		logger.LogInfo("Next cleanup scheduled for %v (in %v)", next.Format("2006-01-02 15:04:05"), time.Until(next).Round(time.Second))
		daily := time.NewTimer(time.Until(next))

	wait:
		for {
			select {
			case <-ctx.Done():
				daily.Stop()
				return nil
			case <-evict.C:
				r.EvictSessions()
			case <-daily.C:
				r.RunOnce(ctx)
				break wait
			}
		}
	}
}

// EvictSessions disposes sessions idle longer than SessionIdle.
func (r *Routine) EvictSessions() int {
	if r.Sessions == nil || r.SessionIdle <= 0 {
		return 0
	}
	return r.Sessions.EvictIdle(r.clock().Add(-r.SessionIdle))
}

// RunOnce performs one pass of the daily cleanup.
func (r *Routine) RunOnce(ctx context.Context) int {
	logger.LogInfo("Starting daily cleanup of abandoned carts")

	r.EvictSessions()

	cutoff := r.clock().Add(-r.CartRetention)
	logger.LogInfo("Cleaning carts untouched for %v (before %v)",
		r.CartRetention, cutoff.Format("2006-01-02 15:04:05"))

	cleaned, err := r.Store.DeleteStale(ctx, cartKeyPrefix, cutoff, maxDeletionPerRun)
	if err != nil {
		logger.LogError("Failed to cleanup abandoned carts: %v", err)
		return 0
	}

	if cleaned == 0 {
		logger.LogInfo("Cleanup completed - no abandoned carts found")
	} else {
		logger.LogInfo("Cleanup completed - total %d abandoned carts removed", cleaned)
	}
	return cleaned
}
