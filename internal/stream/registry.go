package stream

import (
	"context"
	"sync"
)

// Handle is the part of a session the registry needs.
type Handle interface {
	ID() string
	Cancel()
	Done() <-chan struct{}
}

// Registry tracks open sessions so shutdown can tear them down; the HTTP
// server's graceful shutdown would otherwise wait on every stream forever.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Handle
	closed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Handle)}
}

// Add registers h. After CancelAll has been called, h is cancelled right away
// and Add returns false.
func (r *Registry) Add(h Handle) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		h.Cancel()
		return false
	}
	r.sessions[h.ID()] = h
	r.mu.Unlock()
	return true
}

// Remove forgets the session with the given id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CancelAll cancels every registered session, refuses new ones, and waits
// until they have all torn down or ctx expires.
func (r *Registry) CancelAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	handles := make([]Handle, 0, len(r.sessions))
	for _, h := range r.sessions {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
