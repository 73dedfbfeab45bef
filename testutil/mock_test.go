package testutil_test

import (
	"context"

	"github.com/kbukum/dirtytables/component"
)

// mockComponent records lifecycle calls. log is shared between components
// so tests can check ordering.
type mockComponent struct {
	name     string
	log      *[]string
	started  bool
	stopped  bool
	resets   int
	startErr error
	stopErr  error
	resetErr error
}

func newMockComponent(name string) *mockComponent {
	return &mockComponent{name: name, log: new([]string)}
}

func (m *mockComponent) Name() string { return m.name }

func (m *mockComponent) Start(context.Context) error {
	*m.log = append(*m.log, "start "+m.name)
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *mockComponent) Stop(context.Context) error {
	*m.log = append(*m.log, "stop "+m.name)
	if m.stopErr != nil {
		return m.stopErr
	}
	m.stopped = true
	return nil
}

func (m *mockComponent) Reset(context.Context) error {
	*m.log = append(*m.log, "reset "+m.name)
	if m.resetErr != nil {
		return m.resetErr
	}
	m.resets++
	return nil
}

func (m *mockComponent) Health(context.Context) component.Health {
	return component.Health{Name: m.name, Status: component.StatusHealthy}
}
