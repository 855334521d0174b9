// Package store persists which proposals have already been announced, per
// notification category. A flag once set is never cleared.
package store

import (
	"context"
	"errors"

	"github.com/stake-plus/dao-monitor/src/gov"
)

// ErrCorrupt means the persisted state exists but cannot be read back.
// Callers must treat it as fatal; starting from an empty set would repeat
// every announcement in the listing window.
var ErrCorrupt = errors.New("store: persisted state corrupt")

// Store is the notified-set contract shared by every backend.
type Store interface {
	IsNotified(ctx context.Context, voteID int64, category gov.Category) (bool, error)
	MarkNotified(ctx context.Context, voteID int64, category gov.Category) error
	List(ctx context.Context, category gov.Category) ([]int64, error)
	Close() error
}

// Memory is a volatile store, used for dry runs and tests.
type Memory struct {
	set *notifiedSet
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{set: newNotifiedSet()}
}

func (m *Memory) IsNotified(_ context.Context, voteID int64, category gov.Category) (bool, error) {
	return m.set.has(voteID, category), nil
}

func (m *Memory) MarkNotified(_ context.Context, voteID int64, category gov.Category) error {
	m.set.add(voteID, category)
	return nil
}

func (m *Memory) List(_ context.Context, category gov.Category) ([]int64, error) {
	return m.set.list(category), nil
}

func (m *Memory) Close() error { return nil }
