package session

import (
	"fmt"
	"sync"
)

// DefaultSessionID names the one live session a server hosts.
const DefaultSessionID = "main"

// Registry resolves session ids to coordinators.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Coordinator
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Coordinator)}
}

func (r *Registry) Register(c *Coordinator) error {
	if c == nil {
		return fmt.Errorf("nil coordinator")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, c.ID())
	}
	r.byID[c.ID()] = c
	return nil
}

func (r *Registry) Get(id string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

func (r *Registry) Default() (*Coordinator, bool) { return r.Get(DefaultSessionID) }
