package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string       `json:"name" yaml:"name"`
	Status  HealthStatus `json:"status" yaml:"status"`
	Message string       `json:"message,omitempty" yaml:"message,omitempty"`
}

// Component represents a lifecycle-managed component.
type Component interface {
	// Name returns the unique name of the component for registration.
	Name() string

	// Start initializes and starts the component.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the component and releases resources.
	Stop(ctx context.Context) error

	// Health returns the current health status of the component.
	Health(ctx context.Context) Health
}

// Description holds summary information for status output.
type Description struct {
	// Name is the display name. If empty, the component's Name() is used.
	Name string `yaml:"name"`
	// Type categorizes the component: "fixtures", "telemetry", ...
	Type string `yaml:"type"`
	// Details is a one-liner, e.g. "3 connections, 2 open".
	Details string `yaml:"details"`
}

// Describable is optionally implemented by components to describe
// themselves in status output.
type Describable interface {
	Describe() Description
}
