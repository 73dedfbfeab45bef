package component

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/dirtytables/logger"
)

// Lazy provides thread-safe lazy initialization for resources that defer
// expensive setup until first use. A failed initialization is retried on
// the next call.
type Lazy[T any] struct {
	name        string
	mu          sync.RWMutex
	initialized bool
	value       T
	initializer func(ctx context.Context) (T, error)
	healthCheck func(ctx context.Context, value T) error
	closer      func(value T) error
	log         *logger.Logger
}

// NewLazy creates a lazy resource with the given initializer.
func NewLazy[T any](name string, initializer func(context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{
		name:        name,
		initializer: initializer,
		log:         logger.Nop(),
	}
}

// Name returns the resource name.
func (l *Lazy[T]) Name() string {
	return l.name
}

// Get returns the value, initializing it on first use with double-check locking.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.mu.RLock()
	if l.initialized {
		v := l.value
		l.mu.RUnlock()
		return v, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if l.initialized {
		return l.value, nil
	}

	var zero T
	if l.initializer == nil {
		return zero, fmt.Errorf("no initializer for %s", l.name)
	}

	l.log.Debug("Initializing lazy component", logger.Fields(logger.FieldComponent, l.name))
	v, err := l.initializer(ctx)
	if err != nil {
		return zero, err
	}

	l.value = v
	l.initialized = true
	l.log.Debug("Lazy component initialized", logger.Fields(logger.FieldComponent, l.name))
	return v, nil
}

// Peek returns the value without initializing it.
func (l *Lazy[T]) Peek() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value, l.initialized
}

// IsInitialized returns whether the value has been successfully initialized.
func (l *Lazy[T]) IsInitialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initialized
}

// HealthCheck verifies the value is initialized and optionally runs a custom check.
func (l *Lazy[T]) HealthCheck(ctx context.Context) error {
	v, ok := l.Peek()
	if !ok {
		return fmt.Errorf("%s not initialized", l.name)
	}
	if l.healthCheck != nil {
		return l.healthCheck(ctx, v)
	}
	return nil
}

// Close releases the value and marks it as uninitialized.
func (l *Lazy[T]) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil
	}
	var err error
	if l.closer != nil {
		err = l.closer(l.value)
	}
	var zero T
	l.value = zero
	l.initialized = false
	return err
}

// WithHealthCheck sets a custom health check function.
func (l *Lazy[T]) WithHealthCheck(fn func(context.Context, T) error) *Lazy[T] {
	l.healthCheck = fn
	return l
}

// WithCloser sets a custom close function.
func (l *Lazy[T]) WithCloser(fn func(T) error) *Lazy[T] {
	l.closer = fn
	return l
}

// WithLogger sets the logger used for initialization messages.
func (l *Lazy[T]) WithLogger(log *logger.Logger) *Lazy[T] {
	if log != nil {
		l.log = log
	}
	return l
}
