package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kbukum/dirtytables/config"
	"github.com/kbukum/dirtytables/fixture"
)

// Manager drives the dirty table cleanup of several database clusters from
// one test binary. Each cluster gets its own fixture.Manager registered
// under a label, e.g. "app" and "reporting"; any other TestComponent can
// join under a label of its own.
type Manager struct {
	ctx     context.Context
	mu      sync.RWMutex
	labels  []string
	members map[string]TestComponent
}

// NewManager creates an empty manager. ctx is used for every lifecycle call.
func NewManager(ctx context.Context) *Manager {
	return &Manager{
		ctx:     ctx,
		members: make(map[string]TestComponent),
	}
}

// Add registers c under label. Labels are unique.
func (m *Manager) Add(label string, c TestComponent) error {
	if c == nil {
		return fmt.Errorf("cluster %s: nil component", label)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[label]; ok {
		return fmt.Errorf("cluster %s is already registered", label)
	}
	m.labels = append(m.labels, label)
	m.members[label] = c
	return nil
}

// AddFixtures creates a fixture manager for cfg and registers it under label.
func (m *Manager) AddFixtures(label string, cfg *config.Config, opts ...fixture.Option) (*fixture.Manager, error) {
	fixtures, err := fixture.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("cluster %s: %w", label, err)
	}
	if err := m.Add(label, fixtures); err != nil {
		return nil, err
	}
	return fixtures, nil
}

// Labels returns the registered labels in registration order.
func (m *Manager) Labels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.labels...)
}

// Get returns the component registered under label.
func (m *Manager) Get(label string) (TestComponent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.members[label]
	return c, ok
}

// Fixtures returns the fixture manager registered under label.
func (m *Manager) Fixtures(label string) (*fixture.Manager, bool) {
	c, ok := m.Get(label)
	if !ok {
		return nil, false
	}
	fixtures, ok := c.(*fixture.Manager)
	return fixtures, ok
}

type member struct {
	label string
	comp  TestComponent
}

func (m *Manager) snapshot() []member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]member, len(m.labels))
	for i, label := range m.labels {
		out[i] = member{label: label, comp: m.members[label]}
	}
	return out
}

// StartAll starts the clusters in registration order. When one fails, the
// clusters already started are stopped again.
func (m *Manager) StartAll() error {
	members := m.snapshot()
	for i, mb := range members {
		if err := mb.comp.Start(m.ctx); err != nil {
			err = fmt.Errorf("start cluster %s: %w", mb.label, err)
			return errors.Join(err, m.stop(members[:i]))
		}
	}
	return nil
}

// ResetAll truncates every cluster. A failing cluster does not keep the
// others dirty; all failures are returned together.
func (m *Manager) ResetAll() error {
	var errs []error
	for _, mb := range m.snapshot() {
		if err := mb.comp.Reset(m.ctx); err != nil {
			errs = append(errs, fmt.Errorf("reset cluster %s: %w", mb.label, err))
		}
	}
	return errors.Join(errs...)
}

// StopAll stops the clusters in reverse order and joins the failures.
func (m *Manager) StopAll() error {
	return m.stop(m.snapshot())
}

func (m *Manager) stop(members []member) error {
	var errs []error
	for i := len(members) - 1; i >= 0; i-- {
		if err := members[i].comp.Stop(m.ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop cluster %s: %w", members[i].label, err))
		}
	}
	return errors.Join(errs...)
}

// Bind starts every cluster for the duration of t and stops them when t
// finishes.
func (m *Manager) Bind(t testing.TB) *Manager {
	t.Helper()
	if err := m.StartAll(); err != nil {
		t.Fatalf("start clusters: %v", err)
	}
	t.Cleanup(func() {
		if err := m.StopAll(); err != nil {
			t.Errorf("stop clusters: %v", err)
		}
	})
	return m
}

// ResetAfter truncates every cluster when t finishes. Register it after Bind
// so the reset runs before the clusters stop.
func (m *Manager) ResetAfter(t testing.TB) {
	t.Helper()
	t.Cleanup(func() {
		if err := m.ResetAll(); err != nil {
			t.Errorf("reset clusters: %v", err)
		}
	})
}
