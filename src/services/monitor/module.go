package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stake-plus/dao-monitor/src/logging"
	"github.com/stake-plus/dao-monitor/src/scanner"
	"github.com/stake-plus/dao-monitor/src/services/core"
	"go.uber.org/zap"
)

// MinInterval is the shortest schedule cron can express with a constant delay.
const MinInterval = time.Second

// Scanner runs one lifecycle pass.
type Scanner interface {
	Scan(ctx context.Context) (scanner.Report, error)
}

// Module drives the scanner on a fixed interval. Passes never overlap: a tick
// that fires while the previous pass is still running is skipped.
type Module struct {
	scanner  Scanner
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	job    cron.Job
	cancel context.CancelFunc
	first  sync.WaitGroup
}

var _ core.Module = (*Module)(nil)

// NewModule builds the scheduler module.
func NewModule(s Scanner, interval time.Duration, logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{scanner: s, interval: interval, logger: logging.Component(logger, "monitor")}
}

// Name implements core.Module.
func (m *Module) Name() string { return "monitor" }

// Start schedules the recurring pass and kicks off the first one immediately.
func (m *Module) Start(ctx context.Context) error {
	if m.interval < MinInterval {
		return fmt.Errorf("monitor: interval %s below %s", m.interval, MinInterval)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return errors.New("monitor: already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	cl := logging.CronLogger(m.logger)
	c := cron.New(cron.WithLogger(cl))
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(func() { m.runPass(runCtx) }))
	c.Schedule(cron.Every(m.interval), job)

	m.cron = c
	m.job = job
	m.cancel = cancel

	c.Start()
	m.first.Add(1)
	go func() {
		defer m.first.Done()
		job.Run()
	}()

	m.logger.Info("monitor scheduled", zap.Duration("interval", m.interval))
	return nil
}

// Stop cancels any running pass and waits for it to return.
func (m *Module) Stop(ctx context.Context) {
	m.mu.Lock()
	c, cancel := m.cron, m.cancel
	m.cron, m.job, m.cancel = nil, nil, nil
	m.mu.Unlock()
	if c == nil {
		return
	}

	cancel()
	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		m.first.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("monitor stopped")
	case <-ctx.Done():
		m.logger.Warn("monitor stop timed out", zap.Error(ctx.Err()))
	}
}

func (m *Module) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := m.scanner.Scan(ctx); err != nil && ctx.Err() == nil {
		m.logger.Warn("pass failed", zap.Error(err))
	}
}

// trigger runs the scheduled job outside the cron clock.
func (m *Module) trigger() {
	m.mu.Lock()
	job := m.job
	m.mu.Unlock()
	if job != nil {
		job.Run()
	}
}
