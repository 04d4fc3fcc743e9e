package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Manager starts services in registration order and stops them in reverse.
type Manager struct {
	mu       sync.Mutex
	services []Service
	names    map[string]struct{}
	started  int
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{names: make(map[string]struct{})}
}

// Register adds a service. Names must be unique and registration must happen
// before Start.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return errors.New("service is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started > 0 {
		return fmt.Errorf("register %s: manager already started", svc.Name())
	}
	name := svc.Name()
	if _, dup := m.names[name]; dup {
		return fmt.Errorf("service %s already registered", name)
	}
	m.names[name] = struct{}{}
	m.services = append(m.services, svc)
	return nil
}

// Start starts every service. If one fails, those already started are stopped
// and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, svc := range m.services[m.started:] {
		if err := svc.Start(ctx); err != nil {
			m.started += i
			stopErr := m.stopLocked(ctx)
			return errors.Join(fmt.Errorf("start %s: %w", svc.Name(), err), stopErr)
		}
	}
	m.started = len(m.services)
	return nil
}

// Stop stops started services in reverse order, collecting every error.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	var errs []error
	for i := m.started - 1; i >= 0; i-- {
		svc := m.services[i]
		if err := svc.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
		}
	}
	m.started = 0
	return errors.Join(errs...)
}

// Services returns the registered service names in order.
func (m *Manager) Services() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.services))
	for i, svc := range m.services {
		out[i] = svc.Name()
	}
	return out
}

// NoopService satisfies Service for components without background work, so
// they still show up in the lifecycle listing.
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string { return n.ServiceName }

func (n NoopService) Start(context.Context) error { return nil }

func (n NoopService) Stop(context.Context) error { return nil }
