package workers

import (
	"context"
	"time"

	"buildinpublic-hub/logger"
	"buildinpublic-hub/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Sweeper runs one batch pass over open spars.
type Sweeper interface {
	Sweep(ctx context.Context) (services.SweepReport, error)
}

// SparSweeper triggers Sweep on a fixed interval. Each run is a stateless, independent
// invocation; overlapping runs are skipped rather than queued.
type SparSweeper struct {
	sweeper  Sweeper
	interval time.Duration
	sched    gocron.Scheduler
	log      logrus.FieldLogger
}

func NewSparSweeper(sweeper Sweeper, interval time.Duration, clock clockwork.Clock, log logrus.FieldLogger) (*SparSweeper, error) {
	sched, err := newScheduler(clock)
	if err != nil {
		return nil, err
	}
	return &SparSweeper{
		sweeper:  sweeper,
		interval: interval,
		sched:    sched,
		log:      logger.Component(log, "spar_sweeper"),
	}, nil
}

// Start schedules the sweep, running it once immediately, and stops the scheduler when ctx ends.
func (s *SparSweeper) Start(ctx context.Context) error {
	if err := runEvery(ctx, s.sched, "spar-sweep", s.interval, func() { s.RunOnce(ctx) }, s.log); err != nil {
		return err
	}
	s.log.WithField("interval", s.interval.String()).Info("🕒 [SparSweeper] started")
	return nil
}

func (s *SparSweeper) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.log.WithError(err).Error("[SparSweeper] sweep failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"started":   report.Started,
		"synced":    report.Synced,
		"completed": report.Completed,
		"failed":    report.Failed,
		"took":      time.Since(started).String(),
	}).Debug("[SparSweeper] sweep done")
}
