package engine

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the top-level coordinator owning one engine per session id.
// Engines share nothing across keys; the registry itself is the only piece
// of cross-session mutable state and is guarded here.
type Registry struct {
	mu      sync.RWMutex
	engines map[uuid.UUID]*Engine
}

func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[uuid.UUID]*Engine),
	}
}

func (r *Registry) Put(e *Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.SessionId()] = e
}

func (r *Registry) Get(sessionId uuid.UUID) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[sessionId]
	return e, ok
}

func (r *Registry) Remove(sessionId uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, sessionId)
}
