// Package notify fans rendered announcements out to chat and stream
// destinations, suppressing identical sends inside a short window.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"github.com/stake-plus/dao-monitor/src/metrics"
	"github.com/stake-plus/dao-monitor/src/render"
	"go.uber.org/zap"
)

// Result summarizes one Emit call.
type Result struct {
	Delivered  int
	Suppressed int
	Failed     int
}

// Dispatcher delivers each message to every configured destination.
// Delivery failures are logged and counted but never returned: one broken
// destination must not block the others or the scan.
type Dispatcher struct {
	dests    []Destination
	channels map[string]Channel
	cache    SendCache
	pool     pond.Pool
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithConcurrency bounds how many destinations are delivered in parallel.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.pool = pond.NewPool(n, pond.WithQueueSize(n*8))
		}
	}
}

// NewDispatcher wires destinations to the channels able to serve them. A
// destination whose kind has no channel is a configuration error.
func NewDispatcher(dests []Destination, channels []Channel, cache SendCache, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		dests:    dests,
		channels: make(map[string]Channel, len(channels)),
		cache:    cache,
		logger:   zap.NewNop(),
	}
	for _, c := range channels {
		d.channels[c.Name()] = c
	}
	for _, dest := range dests {
		if _, ok := d.channels[dest.Kind]; !ok {
			return nil, fmt.Errorf("destination %s: no %q channel configured", dest, dest.Kind)
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.pool == nil {
		d.pool = pond.NewPool(4, pond.WithQueueSize(32))
	}
	if d.cache == nil {
		d.cache = NewMemoryCache(DefaultSendTTL)
	}
	return d, nil
}

// Destinations returns the configured destinations.
func (d *Dispatcher) Destinations() []Destination {
	out := make([]Destination, len(d.dests))
	copy(out, d.dests)
	return out
}

// Emit delivers msg to all destinations and waits for every attempt.
func (d *Dispatcher) Emit(ctx context.Context, msg render.Message) Result {
	var delivered, suppressed, failed atomic.Int32

	group := d.pool.NewGroupContext(ctx)
	for _, dest := range d.dests {
		channel := d.channels[dest.Kind]
		group.Submit(func() {
			switch d.deliver(ctx, channel, dest, msg) {
			case outcomeDelivered:
				delivered.Add(1)
			case outcomeSuppressed:
				suppressed.Add(1)
			default:
				failed.Add(1)
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		d.logger.Warn("delivery group ended with error", zap.Error(err))
	}

	return Result{
		Delivered:  int(delivered.Load()),
		Suppressed: int(suppressed.Load()),
		Failed:     int(failed.Load()),
	}
}

// Close waits for in-flight deliveries and stops the worker pool.
func (d *Dispatcher) Close() {
	d.pool.StopAndWait()
}

type deliveryOutcome int

const (
	outcomeDelivered deliveryOutcome = iota
	outcomeSuppressed
	outcomeFailed
)

func (d *Dispatcher) deliver(ctx context.Context, channel Channel, dest Destination, msg render.Message) deliveryOutcome {
	text := channel.Format(msg)
	key := SendKey(dest, text)
	log := d.logger.With(
		zap.String("destination", dest.String()),
		zap.Int64("vote_id", msg.VoteID),
		zap.String("kind", string(msg.Kind)),
	)

	reserved, err := d.cache.Reserve(ctx, key)
	if err != nil {
		// Cache errors fall through to sending.
		log.Warn("send cache unavailable", zap.Error(err))
		reserved = true
	}
	if !reserved {
		log.Debug("identical message sent recently, skipping")
		d.metrics.Delivery(channel.Name(), "suppressed")
		return outcomeSuppressed
	}

	if err := channel.Deliver(ctx, dest.Target, msg, text); err != nil {
		log.Error("delivery failed", zap.Error(err))
		d.metrics.Delivery(channel.Name(), "error")
		if rerr := d.cache.Release(context.WithoutCancel(ctx), key); rerr != nil {
			log.Warn("release send cache entry", zap.Error(rerr))
		}
		return outcomeFailed
	}

	log.Info("message delivered")
	d.metrics.Delivery(channel.Name(), "ok")
	return outcomeDelivered
}
