package store

import (
	"context"

	"github.com/stake-plus/dao-monitor/src/gov"
)

// Overlay reads through to a base store but keeps its own marks in memory.
// A dry-run pass uses it to behave exactly like a real pass without
// touching persisted state.
type Overlay struct {
	base  Store
	marks *notifiedSet
}

// NewOverlay wraps base. Closing the overlay does not close base.
func NewOverlay(base Store) *Overlay {
	return &Overlay{base: base, marks: newNotifiedSet()}
}

func (o *Overlay) IsNotified(ctx context.Context, voteID int64, category gov.Category) (bool, error) {
	if o.marks.has(voteID, category) {
		return true, nil
	}
	return o.base.IsNotified(ctx, voteID, category)
}

func (o *Overlay) MarkNotified(_ context.Context, voteID int64, category gov.Category) error {
	o.marks.add(voteID, category)
	return nil
}

// List returns the base ids followed by ids only marked in the overlay.
func (o *Overlay) List(ctx context.Context, category gov.Category) ([]int64, error) {
	ids, err := o.base.List(ctx, category)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, id := range o.marks.list(category) {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Pending returns the ids marked through the overlay only.
func (o *Overlay) Pending(category gov.Category) []int64 {
	return o.marks.list(category)
}

func (o *Overlay) Close() error { return nil }
