// Package agent is the boundary to the external analytical capability. Each
// stage is an opaque agent invoked with a prompt and returning a structured
// JSON payload; this package only transports, it never interprets results.
package agent

import (
	"context"
	"encoding/json"
	"time"
)

// Request is one stage invocation.
type Request struct {
	// StageID is the opaque capability identifier for the agent to run.
	StageID string

	// PromptText is the fully rendered prompt for this invocation.
	PromptText string
}

// Response is the transport-level result of a stage invocation. Success
// reports that the capability was reached; Status reports whether the
// analysis itself succeeded. Result is present only when Status is success.
type Response struct {
	Success    bool            `json:"success"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Model      string          `json:"model,omitempty"`
	TokensUsed int             `json:"tokens_used,omitempty"`
	Duration   time.Duration   `json:"-"`
}

// Driver is the interface all stage invocation drivers implement.
type Driver interface {
	// Invoke runs one stage and returns its raw structured response.
	Invoke(ctx context.Context, req Request) (*Response, error)

	// HealthCheck verifies the driver can reach its capability.
	HealthCheck(ctx context.Context) error

	// Configure sets driver-specific configuration.
	Configure(config map[string]any) error
}

// DriverRegistry manages available drivers by name.
type DriverRegistry struct {
	drivers map[string]func() Driver
}

// NewDriverRegistry creates an empty driver registry.
func NewDriverRegistry() *DriverRegistry {
	return &DriverRegistry{
		drivers: make(map[string]func() Driver),
	}
}

// Register registers a driver factory under a name.
func (r *DriverRegistry) Register(name string, factory func() Driver) {
	r.drivers[name] = factory
}

// Get returns a fresh driver instance by name.
func (r *DriverRegistry) Get(name string) (Driver, error) {
	factory, ok := r.drivers[name]
	if !ok {
		return nil, &DriverNotFoundError{Name: name}
	}
	return factory(), nil
}

// Names returns the registered driver names.
func (r *DriverRegistry) Names() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	return names
}

// DriverNotFoundError is returned when a requested driver doesn't exist.
type DriverNotFoundError struct {
	Name string
}

func (e *DriverNotFoundError) Error() string {
	return "driver not found: " + e.Name
}

// DefaultRegistry is the global driver registry.
var DefaultRegistry = NewDriverRegistry()
