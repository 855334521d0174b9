// Package scanner runs one monitoring pass: it lists recent proposals,
// joins each with its detail, consults the notified set and announces new
// proposals and final outcomes.
package scanner

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stake-plus/dao-monitor/src/gov"
	"github.com/stake-plus/dao-monitor/src/logging"
	"github.com/stake-plus/dao-monitor/src/metrics"
	"github.com/stake-plus/dao-monitor/src/notify"
	"github.com/stake-plus/dao-monitor/src/outcome"
	"github.com/stake-plus/dao-monitor/src/render"
	"github.com/stake-plus/dao-monitor/src/source"
	"github.com/stake-plus/dao-monitor/src/store"
	"go.uber.org/zap"
)

// Source provides proposals, oldest first, and their details.
type Source interface {
	ListRecent(ctx context.Context, window int) ([]gov.Proposal, error)
	FetchDetail(ctx context.Context, voteID int64, voteType gov.VoteType) (gov.Detail, error)
}

// Renderer builds announcement messages.
type Renderer interface {
	NewProposal(p gov.Proposal) (render.Message, error)
	Outcome(p gov.Proposal, d outcome.Decision) (render.Message, error)
	CleanMetadata(raw string) string
}

// Emitter delivers a message to every destination.
type Emitter interface {
	Emit(ctx context.Context, msg render.Message) notify.Result
}

// Scanner holds everything a pass needs. Passes must not overlap; the
// scheduler guarantees that.
type Scanner struct {
	source   Source
	store    store.Store
	renderer Renderer
	emitter  Emitter

	pacer          Pacer
	now            func() time.Time
	window         int
	announceDenied bool
	dryRun         bool
	logger         *zap.Logger
	metrics        *metrics.Metrics

	mu   sync.RWMutex
	last *Report
}

// Option customizes a Scanner.
type Option func(*Scanner)

func WithPacer(p Pacer) Option { return func(s *Scanner) { s.pacer = p } }
func WithClock(now func() time.Time) Option { return func(s *Scanner) { s.now = now } }
func WithWindow(n int) Option { return func(s *Scanner) { s.window = n } }
func WithLogger(l *zap.Logger) Option { return func(s *Scanner) { s.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Scanner) { s.metrics = m } }
func WithDryRun(dryRun bool) Option { return func(s *Scanner) { s.dryRun = dryRun } }

// WithAnnounceDenied makes denied outcomes produce a message instead of
// silently consuming the outcome slot.
func WithAnnounceDenied(announce bool) Option {
	return func(s *Scanner) { s.announceDenied = announce }
}

// New builds a Scanner with a one second pacer and the wall clock.
func New(src Source, st store.Store, r Renderer, e Emitter, opts ...Option) *Scanner {
	s := &Scanner{
		source:   src,
		store:    st,
		renderer: r,
		emitter:  e,
		pacer:    SleepPacer(DefaultPace),
		now:      time.Now,
		window:   source.DefaultWindow,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "scanner")
	return s
}

// LastReport returns the most recent finished pass.
func (s *Scanner) LastReport() (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Report{}, false
	}
	r := *s.last
	r.Emitted = append([]int64(nil), s.last.Emitted...)
	return r, true
}

// item carries per-proposal state for one pass so the detail source is hit
// at most once per proposal.
type item struct {
	listing  gov.Proposal
	fetched  bool
	joined   gov.Proposal
	usable   bool
	fetchErr error
}

// Scan runs one pass. It returns an error only when the listing could not
// be read or ctx ended; per-proposal problems are logged and skipped.
func (s *Scanner) Scan(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString(), DryRun: s.dryRun, StartedAt: s.now()}
	log := s.logger.With(zap.String("run_id", report.RunID))

	err := s.scan(ctx, log, &report)
	report.FinishedAt = s.now()
	switch {
	case err == nil:
		report.Result = ResultOK
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		report.Result = ResultCanceled
		report.Error = err.Error()
	default:
		report.Result = ResultUnavailable
		report.Error = err.Error()
	}

	s.metrics.ObservePass(report.Result, report.Duration().Seconds())
	s.mu.Lock()
	saved := report
	s.last = &saved
	s.mu.Unlock()

	log.Info("pass finished",
		zap.String("result", report.Result),
		zap.Int("listed", report.Listed),
		zap.Int("new", report.NewAnnounced),
		zap.Int("passed", report.PassedAnnounced),
		zap.Int("denied", report.DeniedAnnounced+report.DeniedSilent),
		zap.Int("pending", report.Pending),
		zap.Duration("took", report.Duration()),
	)
	return report, err
}

func (s *Scanner) scan(ctx context.Context, log *zap.Logger, report *Report) error {
	proposals, err := s.source.ListRecent(ctx, s.window)
	if err != nil {
		s.metrics.UpstreamError("listing")
		if logging.IsRateLimit(err) {
			log.Warn("listing rate limited, skipping pass", zap.Error(err))
		} else {
			log.Error("listing unavailable, skipping pass", zap.Error(err))
		}
		return err
	}
	report.Listed = len(proposals)

	for _, p := range proposals {
		if err := ctx.Err(); err != nil {
			return err
		}
		it := &item{listing: p}
		plog := log.With(zap.Int64("vote_id", p.VoteID), zap.String("vote_type", p.VoteType.String()))

		if err := s.newProposalPath(ctx, plog, it, report); err != nil {
			return err
		}
		if err := s.outcomePath(ctx, plog, it, report); err != nil {
			return err
		}
	}
	return nil
}

// newProposalPath announces a proposal the first time it carries usable metadata.
func (s *Scanner) newProposalPath(ctx context.Context, log *zap.Logger, it *item, report *Report) error {
	p, ok := s.claimable(ctx, log, it, gov.CategoryNewProposal, report)
	if !ok {
		return nil
	}
	if p != nil {
		msg, err := s.renderer.NewProposal(*p)
		switch {
		case errors.Is(err, outcome.ErrMalformed):
			report.SkippedMalformed++
			log.Warn("proposal has malformed tallies, retrying next pass", zap.Error(err))
		case err != nil:
			report.SkippedMalformed++
			log.Error("render new proposal", zap.Error(err))
		default:
			if s.markThenEmit(ctx, log, gov.CategoryNewProposal, msg, report) {
				report.NewAnnounced++
				s.metrics.Notification(string(gov.CategoryNewProposal), "announced")
			}
		}
	}
	return s.pacer.Pace(ctx)
}

// outcomePath settles a proposal once it is mature.
func (s *Scanner) outcomePath(ctx context.Context, log *zap.Logger, it *item, report *Report) error {
	p, ok := s.claimable(ctx, log, it, gov.CategoryOutcome, report)
	if !ok {
		return nil
	}
	if p != nil {
		s.settle(ctx, log, *p, report)
	}
	return s.pacer.Pace(ctx)
}

func (s *Scanner) settle(ctx context.Context, log *zap.Logger, p gov.Proposal, report *Report) {
	decision, err := outcome.Classify(p, s.now())
	if err != nil {
		report.SkippedMalformed++
		log.Warn("cannot classify proposal, retrying next pass", zap.Error(err))
		return
	}
	log = log.With(zap.String("verdict", decision.Verdict.String()))

	switch decision.Verdict {
	case outcome.Pending:
		report.Pending++
		log.Debug("vote still open")
	case outcome.Denied:
		if !s.announceDenied {
			if err := s.store.MarkNotified(ctx, p.VoteID, gov.CategoryOutcome); err != nil {
				report.StoreErrors++
				log.Error("mark denied outcome", zap.Error(err))
				return
			}
			report.DeniedSilent++
			s.metrics.Notification(string(gov.CategoryOutcome), decision.Verdict.String())
			log.Info("vote denied, outcome recorded without announcement")
			return
		}
		fallthrough
	case outcome.Passed:
		msg, err := s.renderer.Outcome(p, decision)
		if err != nil {
			report.SkippedMalformed++
			log.Error("render outcome", zap.Error(err))
			return
		}
		if !s.markThenEmit(ctx, log, gov.CategoryOutcome, msg, report) {
			return
		}
		if decision.Verdict == outcome.Passed {
			report.PassedAnnounced++
		} else {
			report.DeniedAnnounced++
		}
		s.metrics.Notification(string(gov.CategoryOutcome), decision.Verdict.String())
	}
}

// claimable checks the notified flag and loads the joined proposal. ok is
// false when the path is already done or the flag could not be read; in that
// case no pacing applies. A nil proposal with ok true means the path was
// attempted but the data is unusable this pass.
func (s *Scanner) claimable(ctx context.Context, log *zap.Logger, it *item, category gov.Category, report *Report) (*gov.Proposal, bool) {
	done, err := s.store.IsNotified(ctx, it.listing.VoteID, category)
	if err != nil {
		report.StoreErrors++
		log.Error("read notified flag", zap.String("category", string(category)), zap.Error(err))
		return nil, false
	}
	if done {
		return nil, false
	}

	if !it.fetched {
		it.fetched = true
		report.DetailFetches++
		detail, err := s.source.FetchDetail(ctx, it.listing.VoteID, it.listing.VoteType)
		if err != nil {
			it.fetchErr = err
			s.metrics.UpstreamError("detail")
			switch {
			case errors.Is(err, source.ErrNotFound):
				log.Info("detail not published yet", zap.Error(err))
			case logging.IsRateLimit(err):
				log.Warn("detail rate limited", zap.Error(err))
			default:
				log.Warn("detail unavailable", zap.Error(err))
			}
		} else {
			it.joined = gov.Join(it.listing, detail)
			it.usable = s.metadataUsable(it.joined)
		}
	}

	if it.fetchErr != nil {
		report.SkippedUnavailable++
		return nil, true
	}
	if !it.usable {
		report.SkippedMetadata++
		log.Debug("metadata missing or too short", zap.String("category", string(category)))
		return nil, true
	}
	p := it.joined
	return &p, true
}

// metadataUsable judges the text that would actually be announced, so markup
// or quoted blanks never produce a headline-only message.
func (s *Scanner) metadataUsable(p gov.Proposal) bool {
	if !p.MetadataValid() {
		return false
	}
	return utf8.RuneCountInString(s.renderer.CleanMetadata(p.Metadata)) >= gov.MinMetadataLength
}

// markThenEmit records the flag and only then delivers. A failed mark
// suppresses delivery so a broken store cannot cause repeated messages.
func (s *Scanner) markThenEmit(ctx context.Context, log *zap.Logger, category gov.Category, msg render.Message, report *Report) bool {
	if err := s.store.MarkNotified(ctx, msg.VoteID, category); err != nil {
		report.StoreErrors++
		log.Error("mark notified, announcement withheld", zap.String("category", string(category)), zap.Error(err))
		return false
	}
	res := s.emitter.Emit(ctx, msg)
	report.Delivered += res.Delivered
	report.DeliveryFailures += res.Failed
	report.DeliverySuppressed += res.Suppressed
	report.Emitted = append(report.Emitted, msg.VoteID)
	log.Info("announcement emitted",
		zap.String("category", string(category)),
		zap.String("kind", string(msg.Kind)),
		zap.Int("delivered", res.Delivered),
		zap.Int("failed", res.Failed),
	)
	return true
}
