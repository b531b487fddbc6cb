package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

type pendingExpirer interface {
	ExpirePending(ctx context.Context, ttl time.Duration) (int64, error)
}

type eventPurger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

const retentionSpec = "@daily"

// ExpirySweeper periodically fails gateway orders abandoned before capture.
type ExpirySweeper struct {
	tracker pendingExpirer
	spec    string
	ttl     time.Duration
	cron    *cron.Cron
	logger  *logging.Logger

	purger    eventPurger
	retention time.Duration
	now       func() time.Time
}

// NewExpirySweeper builds a sweeper running on the cron spec (for example
// "@every 15m").
func NewExpirySweeper(tracker pendingExpirer, spec string, ttl time.Duration, logger *logging.Logger) *ExpirySweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &ExpirySweeper{
		tracker: tracker,
		spec:    spec,
		ttl:     ttl,
		cron:    cron.New(),
		logger:  logger,
		now:     time.Now,
	}
}

// WithEventRetention also purges processed webhook ids older than retention
// once a day.
func (s *ExpirySweeper) WithEventRetention(purger eventPurger, retention time.Duration) *ExpirySweeper {
	if purger != nil && retention > 0 {
		s.purger = purger
		s.retention = retention
	}
	return s
}

// Start schedules the sweep and stops the scheduler when ctx ends.
func (s *ExpirySweeper) Start(ctx context.Context) error {
	if s.ttl <= 0 {
		return fmt.Errorf("payments: expiry ttl must be positive")
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("payments: schedule expiry sweep %q: %w", s.spec, err)
	}
	if s.purger != nil {
		if _, err := s.cron.AddFunc(retentionSpec, func() { s.PurgeEvents(ctx) }); err != nil {
			return fmt.Errorf("payments: schedule event purge: %w", err)
		}
	}
	s.cron.Start()
	s.logger.Info("pending order expiry sweep scheduled", "spec", s.spec, "ttl", s.ttl.String())
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	return nil
}

// Sweep runs one expiry pass.
func (s *ExpirySweeper) Sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.tracker.ExpirePending(ctx, s.ttl)
	if err != nil {
		s.logger.Error("pending order expiry failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("pending orders expired", "count", n)
	}
}

// PurgeEvents runs one retention pass over processed webhook ids.
func (s *ExpirySweeper) PurgeEvents(ctx context.Context) {
	if s.purger == nil || ctx.Err() != nil {
		return
	}
	n, err := s.purger.Purge(ctx, s.now().Add(-s.retention))
	if err != nil {
		s.logger.Error("processed event purge failed", "error", err)
		return
	}
	s.logger.Info("processed events purged", "count", n, "retention", s.retention.String())
}
