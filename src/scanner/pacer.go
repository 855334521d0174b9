package scanner

import (
	"context"
	"time"
)

// DefaultPace is the pause after each path that reached the detail source.
const DefaultPace = time.Second

// Pacer throttles the pass between proposals.
type Pacer interface {
	Pace(ctx context.Context) error
}

// PacerFunc adapts a function to Pacer.
type PacerFunc func(ctx context.Context) error

func (f PacerFunc) Pace(ctx context.Context) error { return f(ctx) }

// SleepPacer waits a fixed interval.
type SleepPacer time.Duration

func (p SleepPacer) Pace(ctx context.Context) error {
	if p <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(p))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
