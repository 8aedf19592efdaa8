package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"buildinpublic-hub/githubapi"
	"buildinpublic-hub/logger"
	"buildinpublic-hub/metrics"
	"buildinpublic-hub/models"
	"buildinpublic-hub/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CommitSource supplies a user's recent public activity, newest first.
type CommitSource interface {
	RecentEvents(ctx context.Context, handle string) ([]githubapi.Event, error)
}

const (
	maxCommitMessageRunes = 500
	mergeCommitPrefix     = "Merge"
)

// CommitSyncer refreshes each participant's tally of an active spar from the commit source.
type CommitSyncer struct {
	spars   repository.SparRepository
	commits repository.CommitRepository
	source  CommitSource
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewCommitSyncer(spars repository.SparRepository, commits repository.CommitRepository, source CommitSource, log logrus.FieldLogger, m *metrics.Metrics) *CommitSyncer {
	if m == nil {
		m = metrics.Noop()
	}
	return &CommitSyncer{
		spars:   spars,
		commits: commits,
		source:  source,
		log:     logger.Component(log, "spar_sync"),
		metrics: m,
	}
}

// SyncBoth syncs creator and opponent concurrently. They touch disjoint rows,
// and a failure on one side never affects the other.
func (s *CommitSyncer) SyncBoth(ctx context.Context, spar *models.Spar) (creator, opponent int64) {
	var g errgroup.Group
	g.Go(func() error {
		creator = s.SyncParticipant(ctx, spar, models.SparRoleCreator)
		return nil
	})
	g.Go(func() error {
		opponent = s.SyncParticipant(ctx, spar, models.SparRoleOpponent)
		return nil
	})
	_ = g.Wait()
	return creator, opponent
}

// SyncParticipant pulls role's recent pushes, stores the qualifying commits and
// recomputes the total by counting stored rows. Any failure is logged and the
// previously known total is returned; the next sync is the retry.
func (s *CommitSyncer) SyncParticipant(ctx context.Context, spar *models.Spar, role models.SparRole) int64 {
	prior := spar.CommitsFor(role)
	if spar.Status != models.SparStatusActive {
		return prior
	}
	user := spar.Participant(role)
	userID := spar.ParticipantID(role)
	if user == nil || userID == "" || user.GitHubUsername == "" {
		return prior
	}

	log := s.log.WithFields(logrus.Fields{"spar_id": spar.ID, "role": role, "handle": user.GitHubUsername})

	events, err := s.source.RecentEvents(ctx, user.GitHubUsername)
	if err != nil {
		s.metrics.ParticipantSyncs.WithLabelValues("fetch_error").Inc()
		log.WithError(err).Warn("failed to fetch commit activity")
		return prior
	}

	qualifying := QualifyingCommits(spar, userID, events)
	s.metrics.CommitsIngested.Add(float64(len(qualifying)))

	inserted, err := s.commits.InsertIgnore(ctx, qualifying)
	if err != nil {
		s.metrics.ParticipantSyncs.WithLabelValues("store_error").Inc()
		log.WithError(err).Error("failed to store spar commits")
		return prior
	}

	total, err := s.commits.Count(ctx, spar.ID, userID)
	if err != nil {
		s.metrics.ParticipantSyncs.WithLabelValues("store_error").Inc()
		log.WithError(err).Error("failed to count spar commits")
		return prior
	}

	updated, err := s.spars.SetCommitCount(ctx, spar.ID, role, total)
	if err != nil {
		s.metrics.ParticipantSyncs.WithLabelValues("store_error").Inc()
		log.WithError(err).Error("failed to update spar commit count")
		return prior
	}
	if !updated {
		// The spar left active under us; its totals are frozen.
		log.Info("spar no longer active, commit count left unchanged")
		return prior
	}

	s.metrics.ParticipantSyncs.WithLabelValues("ok").Inc()
	log.WithFields(logrus.Fields{"new": inserted, "total": total}).Info("participant synced")
	return total
}

// QualifyingCommits flattens push events inside the spar window into SparCommit rows
// for userID. Merge commits and duplicate SHAs are dropped.
func QualifyingCommits(spar *models.Spar, userID string, events []githubapi.Event) []models.SparCommit {
	if spar.ActualStart == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []models.SparCommit
	for _, ev := range events {
		if ev.Type != githubapi.PushEventType || !inWindow(spar, ev) {
			continue
		}
		repoName := ev.Repo.Name
		if repoName == "" {
			repoName = "unknown"
		}
		repoURL := "https://github.com/" + repoName

		for _, c := range ev.Payload.Commits {
			if c.SHA == "" || strings.HasPrefix(c.Message, mergeCommitPrefix) {
				continue
			}
			if _, dup := seen[c.SHA]; dup {
				continue
			}
			seen[c.SHA] = struct{}{}

			msg := truncateRunes(c.Message, maxCommitMessageRunes)
			name, url := repoName, repoURL
			out = append(out, models.SparCommit{
				SparID:        spar.ID,
				UserID:        userID,
				CommitSHA:     c.SHA,
				CommitMessage: &msg,
				RepoName:      &name,
				RepoURL:       &url,
				CommittedAt:   ev.CreatedAt.UTC(),
			})
		}
	}
	return out
}

func inWindow(spar *models.Spar, ev githubapi.Event) bool {
	if ev.CreatedAt.IsZero() || ev.CreatedAt.Before(*spar.ActualStart) {
		return false
	}
	return spar.ActualEnd == nil || !ev.CreatedAt.After(*spar.ActualEnd)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
