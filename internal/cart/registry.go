package cart

import (
	"context"
	"sync"
	"time"

	"storefront/internal/logger"
	"storefront/internal/notify"
)

// Session pairs a cart with the notices raised while using it.
type Session struct {
	ID      string
	Cart    *Machine
	Notices *notify.Queue

	lastUsed time.Time
}

// Registry creates machines on first use and disposes idle ones.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	store    Store
	opts     []Option
	now      func() time.Time
}

func NewRegistry(store Store, opts ...Option) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		store:    store,
		opts:     opts,
		now:      time.Now,
	}
}

// Get returns the session, restoring its cart from the store when new.
func (r *Registry) Get(ctx context.Context, id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.lastUsed = r.now()
		return s
	}

	queue := notify.NewQueue(0)
	opts := append([]Option{WithNotifier(queue)}, r.opts...)
	s := &Session{
		ID:       id,
		Cart:     New(ctx, r.store, StorageKey(id), opts...),
		Notices:  queue,
		lastUsed: r.now(),
	}
	r.sessions[id] = s
	return s
}

// EvictIdle disposes sessions not used since cutoff. Saved carts stay in the store.
func (r *Registry) EvictIdle(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			s.Cart.Close()
			delete(r.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		logger.LogInfo("Evicted %d idle cart sessions", evicted)
	}
	return evicted
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		s.Cart.Close()
		delete(r.sessions, id)
	}
}
