package backend

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Factory constructs a backend on first use. Construction failures are
// not cached; a later Get retries the factory.
type Factory func() (Backend, error)

type entry struct {
	backend  Backend
	lastUsed time.Time
}

// Registry lazily constructs backends by name and evicts the ones that
// have gone idle. Concurrent Gets for the same name run the factory
// exactly once.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	live      map[string]*entry
	group     singleflight.Group
	logger    *slog.Logger
	now       func() time.Time
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[string]Factory),
		live:      make(map[string]*entry),
		logger:    logger,
		now:       time.Now,
	}
}

// Register installs a factory under a unique name. Registering a
// duplicate name is a programming error.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("backend %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Get returns the live backend for name, constructing it on first use.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.Lock()
	if e, ok := r.live[name]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		return e.backend, nil
	}
	f, ok := r.factories[name]
	r.mu.Unlock()

	if !ok {
		return nil, &UnavailableError{Backend: name, Cause: fmt.Errorf("unknown backend %q", name)}
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		r.mu.Lock()
		if e, ok := r.live[name]; ok {
			e.lastUsed = r.now()
			r.mu.Unlock()
			return e.backend, nil
		}
		r.mu.Unlock()

		b, err := f()
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.live[name] = &entry{backend: b, lastUsed: r.now()}
		r.mu.Unlock()

		r.logger.Debug("backend constructed", "backend", name)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Backend), nil
}

// EvictIdle drops every live backend unused for longer than maxIdle and
// returns the names evicted. The factories stay registered, so an
// evicted backend is rebuilt on the next Get.
func (r *Registry) EvictIdle(maxIdle time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	var evicted []string
	for name, e := range r.live {
		if e.lastUsed.Before(cutoff) {
			delete(r.live, name)
			evicted = append(evicted, name)
		}
	}
	if len(evicted) > 0 {
		r.logger.Info("evicted idle backends", "backends", evicted)
	}
	return evicted
}

// Clear drops all live backends.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.live)
}

// Live reports the names of currently constructed backends.
func (r *Registry) Live() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.live))
	for name := range r.live {
		names = append(names, name)
	}
	return names
}
