package services

import (
	"github.com/stake-plus/dao-monitor/src/services/core"
	"go.uber.org/zap"
)

type (
	// Manager re-exports the core.Manager for consumers outside the services package.
	Manager = core.Manager
	// Module re-exports the core.Module interface.
	Module = core.Module
)

// NewManager is a helper that forwards to core.NewManager.
func NewManager(logger *zap.Logger, mods ...Module) *Manager {
	return core.NewManager(logger, mods...)
}
