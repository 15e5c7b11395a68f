// Package notify carries transient user-facing notices from domain
// operations back to whoever renders them.
package notify

import "sync"

type Variant string

const (
	Default     Variant = "default"
	Destructive Variant = "destructive"
)

type Notice struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Variant     Variant `json:"variant"`
}

// Notifier receives notices as they are raised.
type Notifier interface {
	Notify(Notice)
}

// Func adapts a plain function to Notifier.
type Func func(Notice)

func (f Func) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = Func(func(Notice) {})

// Queue buffers notices until they are drained into a response.
type Queue struct {
	mu      sync.Mutex
	pending []Notice
	limit   int
}

// NewQueue keeps at most limit notices, dropping the oldest.
func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = 20
	}
	return &Queue{limit: limit}
}

func (q *Queue) Notify(n Notice) {
	if n.Variant == "" {
		n.Variant = Default
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, n)
	if over := len(q.pending) - q.limit; over > 0 {
		q.pending = q.pending[over:]
	}
}

// Drain returns and clears the buffered notices.
func (q *Queue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.pending
	q.pending = nil
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
