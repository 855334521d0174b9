package bot

import (
	"context"
	"errors"

	"github.com/stake-plus/dao-monitor/src/services/core"
	"go.uber.org/zap"
)

var (
	_ core.Module = (*Telegram)(nil)
	_ core.Module = (*Discord)(nil)
)

// Start begins listening for probe messages in the background.
func (t *Telegram) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return errors.New("telegram: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := t.Listen(runCtx); err != nil {
			t.logger.Error("telegram listener stopped", zap.Error(err))
		}
	}()
	t.cancel, t.done = cancel, done
	return nil
}

// Stop ends the listener and waits for pending probe replies.
func (t *Telegram) Stop(ctx context.Context) {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		t.logger.Warn("telegram stop timed out", zap.Error(ctx.Err()))
	}
}

// Start connects the gateway so probe messages are received.
func (d *Discord) Start(context.Context) error {
	return d.Open()
}

// Stop disconnects the gateway.
func (d *Discord) Stop(context.Context) {
	if err := d.Close(); err != nil {
		d.logger.Warn("discord close", zap.Error(err))
	}
}
