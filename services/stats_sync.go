package services

import (
	"context"
	"strings"
	"time"

	"buildinpublic-hub/githubapi"
	"buildinpublic-hub/logger"
	"buildinpublic-hub/metrics"
	"buildinpublic-hub/models"
	"buildinpublic-hub/repository"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// StatsReport summarizes one leaderboard stats pass.
type StatsReport struct {
	Synced int `json:"synced"`
	Errors int `json:"errors"`
	Total  int `json:"total"`
}

// StatsSyncer refreshes tracked developers' commit activity and leaderboard score.
type StatsSyncer struct {
	devs    repository.DeveloperRepository
	source  CommitSource
	clock   clockwork.Clock
	pause   time.Duration
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewStatsSyncer builds a syncer that waits pause between developers to stay under
// the GitHub rate limit. A nil clock means the real one.
func NewStatsSyncer(devs repository.DeveloperRepository, source CommitSource, clock clockwork.Clock, pause time.Duration, log logrus.FieldLogger, m *metrics.Metrics) *StatsSyncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &StatsSyncer{
		devs:    devs,
		source:  source,
		clock:   clock,
		pause:   pause,
		log:     logger.Component(log, "stats_sync"),
		metrics: m,
	}
}

// SyncAll records a stats snapshot for every tracked developer and sets their score.
// A developer that fails is logged and counted in Errors; the rest still sync.
func (s *StatsSyncer) SyncAll(ctx context.Context) (StatsReport, error) {
	devs, err := s.devs.List(ctx)
	if err != nil {
		return StatsReport{}, err
	}
	report := StatsReport{Total: len(devs)}
	for i := range devs {
		if i > 0 && s.pause > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-s.clock.After(s.pause):
			}
		}
		if s.syncDeveloper(ctx, &devs[i]) {
			report.Synced++
		} else {
			report.Errors++
		}
	}
	s.log.WithFields(logrus.Fields{"synced": report.Synced, "errors": report.Errors, "total": report.Total}).Info("📊 developer stats synced")
	return report, nil
}

func (s *StatsSyncer) syncDeveloper(ctx context.Context, dev *models.Developer) bool {
	log := s.log.WithFields(logrus.Fields{"developer_id": dev.ID, "handle": dev.Username})

	events, err := s.source.RecentEvents(ctx, dev.Username)
	if err != nil {
		s.metrics.StatsSyncs.WithLabelValues("fetch_error").Inc()
		log.WithError(err).Warn("failed to fetch developer activity")
		return false
	}
	commits := PushedCommits(events)

	if err := s.devs.RecordStats(ctx, &models.StatsHistory{
		DeveloperID:             dev.ID,
		GitHubCommitsLast30Days: commits,
		RecordedAt:              s.clock.Now().UTC(),
	}); err != nil {
		s.metrics.StatsSyncs.WithLabelValues("store_error").Inc()
		log.WithError(err).Error("failed to record developer stats")
		return false
	}

	// The snapshot is what counts; a stale score is fixed by the next pass.
	if err := s.devs.SetScore(ctx, dev.ID, models.ScoreFor(commits)); err != nil {
		log.WithError(err).Error("failed to update developer score")
	}

	s.metrics.StatsSyncs.WithLabelValues("ok").Inc()
	log.WithField("commits", commits).Debug("developer synced")
	return true
}

// PushedCommits totals the commit counts GitHub reports on push events.
func PushedCommits(events []githubapi.Event) int64 {
	var n int64
	for _, ev := range events {
		if ev.Type == githubapi.PushEventType {
			n += int64(ev.Payload.Size)
		}
	}
	return n
}

// Track starts following handle on the leaderboard.
func (s *StatsSyncer) Track(ctx context.Context, handle string) (*models.Developer, error) {
	return s.devs.Track(ctx, repository.DeveloperProfile{Handle: strings.TrimSpace(handle)})
}

func (s *StatsSyncer) Leaderboard(ctx context.Context, limit int) ([]models.Developer, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.devs.Leaderboard(ctx, limit)
}
