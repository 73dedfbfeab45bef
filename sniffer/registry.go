package sniffer

import (
	"context"
	"slices"
	"sync"

	"github.com/kbukum/dirtytables/database"
	"github.com/kbukum/dirtytables/logger"
)

// Registry keeps one initialized Tracker per connection name.
type Registry struct {
	mu       sync.Mutex
	trackers map[string]*Tracker
	opts     []Option
	log      *logger.Logger
}

// NewRegistry creates an empty registry. opts are applied to every tracker it creates.
func NewRegistry(log *logger.Logger, opts ...Option) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		trackers: make(map[string]*Tracker),
		opts:     append([]Option{WithLogger(log)}, opts...),
		log:      log.WithComponent("sniffer_registry"),
	}
}

// Get returns the tracker of conn, creating and initializing it on first use.
// A tracker whose Init fails is not kept.
func (r *Registry) Get(ctx context.Context, conn database.Executor, provider TriggerProvider) (*Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.trackers[conn.Name()]; ok {
		return t, nil
	}
	t, err := New(conn, provider, r.opts...)
	if err != nil {
		return nil, err
	}
	if err := t.Init(ctx); err != nil {
		return nil, err
	}
	r.trackers[conn.Name()] = t
	r.log.Debug("Tracker registered", logger.Fields(logger.FieldConnection, conn.Name()))
	return t, nil
}

// Lookup returns the tracker of a connection without creating one.
func (r *Registry) Lookup(name string) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[name]
	return t, ok
}

// Forget drops the tracker of a connection. Its database objects are left alone.
func (r *Registry) Forget(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trackers, name)
}

// Reset forgets every tracker.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackers = make(map[string]*Tracker)
}

// Names returns the registered connection names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.trackers))
	for name := range r.trackers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
