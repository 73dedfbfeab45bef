package observability

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/dirtytables/component"
	"github.com/kbukum/dirtytables/logger"
)

// Component installs the exporters on Start and flushes them on Stop so
// telemetry can be registered next to the fixture manager.
type Component struct {
	cfg         Config
	serviceName string
	log         *logger.Logger

	mu       sync.Mutex
	shutdown func(context.Context) error
	metrics  *Metrics
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates the telemetry component. Its metrics are usable
// before Start; they are forwarded once the providers are installed.
func NewComponent(cfg Config, serviceName string, log *logger.Logger) (*Component, error) {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	metrics, err := NewMetrics(Meter(InstrumentationName))
	if err != nil {
		return nil, err
	}
	return &Component{
		cfg:         cfg,
		serviceName: serviceName,
		log:         log.WithComponent("observability"),
		metrics:     metrics,
	}, nil
}

// Metrics returns the instruments of the component.
func (c *Component) Metrics() *Metrics { return c.metrics }

// Name implements component.Component.
func (c *Component) Name() string { return "observability" }

// Start installs the tracer and meter providers.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown != nil {
		return nil
	}
	shutdown, err := Setup(ctx, c.cfg, c.serviceName, c.log)
	if err != nil {
		return err
	}
	c.shutdown = shutdown
	return nil
}

// Stop flushes and shuts the providers down.
func (c *Component) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown == nil {
		return nil
	}
	err := c.shutdown(ctx)
	c.shutdown = nil
	return err
}

// Health implements component.Component.
func (c *Component) Health(context.Context) component.Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown == nil {
		return component.Health{Name: c.Name(), Status: component.StatusDegraded, Message: "not started"}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Describe implements component.Describable.
func (c *Component) Describe() component.Description {
	details := "export disabled"
	if c.cfg.Enabled() {
		details = fmt.Sprintf("OTLP %s, sample rate %.2f", c.cfg.Endpoint, c.cfg.SampleRate)
	}
	return component.Description{Name: "Telemetry", Type: "telemetry", Details: details}
}
