// Package system manages the lifecycle of long-running components. Anything
// that owns a goroutine (sweepers, flushers) implements Service and registers
// with the Manager; request-driven components register a NoopService so they
// show up in the service inventory.
package system

import "context"

// Service is a named component with a managed lifecycle.
type Service interface {
	// Name returns a unique, stable identifier for the service.
	Name() string
	// Start brings the service up. It must not block beyond initialization.
	Start(ctx context.Context) error
	// Stop shuts the service down, honoring the context deadline.
	Stop(ctx context.Context) error
}

// NoopService satisfies Service for components without background work.
type NoopService struct {
	ServiceName string
}

// Name returns the configured service name.
func (s NoopService) Name() string { return s.ServiceName }

// Start is a no-op.
func (s NoopService) Start(context.Context) error { return nil }

// Stop is a no-op.
func (s NoopService) Stop(context.Context) error { return nil }
