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

// StatsSyncer refreshes the developer leaderboard.
type StatsSyncer interface {
	SyncAll(ctx context.Context) (services.StatsReport, error)
}

// StatsRefresher runs SyncAll on a fixed interval beside the spar sweep.
type StatsRefresher struct {
	syncer   StatsSyncer
	interval time.Duration
	sched    gocron.Scheduler
	log      logrus.FieldLogger
}

func NewStatsRefresher(syncer StatsSyncer, interval time.Duration, clock clockwork.Clock, log logrus.FieldLogger) (*StatsRefresher, error) {
	sched, err := newScheduler(clock)
	if err != nil {
		return nil, err
	}
	return &StatsRefresher{
		syncer:   syncer,
		interval: interval,
		sched:    sched,
		log:      logger.Component(log, "stats_refresher"),
	}, nil
}

func (s *StatsRefresher) Start(ctx context.Context) error {
	if err := runEvery(ctx, s.sched, "stats-sync", s.interval, func() { s.RunOnce(ctx) }, s.log); err != nil {
		return err
	}
	s.log.WithField("interval", s.interval.String()).Info("🕒 [StatsRefresher] started")
	return nil
}

func (s *StatsRefresher) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.syncer.SyncAll(ctx)
	if err != nil {
		s.log.WithError(err).Error("[StatsRefresher] stats sync failed")
		return
	}
	if report.Errors > 0 {
		s.log.WithFields(logrus.Fields{"errors": report.Errors, "total": report.Total}).Warn("[StatsRefresher] some developers failed to sync")
	}
}
