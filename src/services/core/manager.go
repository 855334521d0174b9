package core

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Module is a long-running part of the monitor that can be started and stopped.
type Module interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// Manager coordinates the lifecycle of all registered modules.
type Manager struct {
	modules []Module
	logger  *zap.Logger
	mu      sync.Mutex
	started bool
}

// NewManager creates a manager with the provided modules.
func NewManager(logger *zap.Logger, mods ...Module) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{modules: mods, logger: logger}
}

// Add registers an additional module before Start is invoked.
func (m *Manager) Add(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("services.Manager: cannot add modules after start")
	}
	m.modules = append(m.modules, mod)
	return nil
}

// Names lists the registered modules in start order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.modules))
	for _, mod := range m.modules {
		if mod != nil {
			names = append(names, mod.Name())
		}
	}
	return names
}

// Start starts all modules in order. If one fails, the ones already started
// are stopped in reverse order.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("services.Manager already started")
	}

	started := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		if mod == nil {
			continue
		}
		if err := mod.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				started[i].Stop(ctx)
			}
			return fmt.Errorf("module %s failed: %w", mod.Name(), err)
		}
		m.logger.Info("module started", zap.String("module", mod.Name()))
		started = append(started, mod)
	}

	m.started = true
	return nil
}

// Stop shuts down all modules in reverse order.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	for i := len(m.modules) - 1; i >= 0; i-- {
		if mod := m.modules[i]; mod != nil {
			mod.Stop(ctx)
			m.logger.Info("module stopped", zap.String("module", mod.Name()))
		}
	}
	m.started = false
}
