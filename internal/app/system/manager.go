package system

import (
	"context"
	"fmt"
	"sync"

	"github.com/skydeck-host/skydeck/pkg/logger"
)

// Manager owns a set of services and starts and stops them as a unit.
// Services start in registration order and stop in reverse.
type Manager struct {
	mu       sync.Mutex
	services []Service
	names    map[string]bool
	started  bool
	log      *logger.Logger
}

// NewManager creates an empty Manager.
func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("system")
	}
	return &Manager{names: make(map[string]bool), log: log}
}

// Register adds a service. Names must be unique; registering after Start is
// an error.
func (m *Manager) Register(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("register %s: manager already started", svc.Name())
	}
	if m.names[svc.Name()] {
		return fmt.Errorf("register %s: duplicate service name", svc.Name())
	}
	m.names[svc.Name()] = true
	m.services = append(m.services, svc)
	return nil
}

// Names returns the registered service names in start order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.services))
	for _, svc := range m.services {
		names = append(names, svc.Name())
	}
	return names
}

// Start starts all services in registration order. On failure the services
// already started are stopped in reverse before the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	for i, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := m.services[j].Stop(ctx); stopErr != nil {
					m.log.WithError(stopErr).Warnf("stop %s during failed start", m.services[j].Name())
				}
			}
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		m.log.Infof("service %s started", svc.Name())
	}
	m.started = true
	return nil
}

// Stop stops all services in reverse registration order, continuing past
// failures and returning the first error encountered.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	var firstErr error
	for i := len(m.services) - 1; i >= 0; i-- {
		svc := m.services[i]
		if err := svc.Stop(ctx); err != nil {
			m.log.WithError(err).Warnf("stop %s", svc.Name())
			if firstErr == nil {
				firstErr = fmt.Errorf("stop %s: %w", svc.Name(), err)
			}
			continue
		}
		m.log.Infof("service %s stopped", svc.Name())
	}
	m.started = false
	return firstErr
}
