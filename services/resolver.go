package services

import (
	"context"
	"fmt"
	"time"

	"buildinpublic-hub/errs"
	"buildinpublic-hub/logger"
	"buildinpublic-hub/metrics"
	"buildinpublic-hub/models"
	"buildinpublic-hub/repository"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// ResultArchiver publishes a snapshot of a finished spar.
type ResultArchiver interface {
	ArchiveResult(ctx context.Context, spar *models.Spar, commits []models.SparCommit) error
}

// Resolver finalizes spars whose window has elapsed.
type Resolver struct {
	spars    repository.SparRepository
	users    repository.UserRepository
	commits  repository.CommitRepository
	archiver ResultArchiver
	clock    clockwork.Clock
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

func NewResolver(spars repository.SparRepository, users repository.UserRepository, commits repository.CommitRepository,
	archiver ResultArchiver, clock clockwork.Clock, log logrus.FieldLogger, m *metrics.Metrics) *Resolver {
	if m == nil {
		m = metrics.Noop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{
		spars:    spars,
		users:    users,
		commits:  commits,
		archiver: archiver,
		clock:    clock,
		log:      logger.Component(log, "spar_resolver"),
		metrics:  m,
	}
}

// DetermineOutcome compares the final tallies; equal counts are a tie.
func DetermineOutcome(creatorCommits, opponentCommits int64) models.SparOutcome {
	switch {
	case creatorCommits > opponentCommits:
		return models.SparOutcomeCreator
	case opponentCommits > creatorCommits:
		return models.SparOutcomeOpponent
	}
	return models.SparOutcomeTie
}

// Complete closes an active spar and settles the win/loss records.
// Completing an already completed spar is a no-op. Unless force is set, the
// spar's window must have ended.
func (r *Resolver) Complete(ctx context.Context, spar *models.Spar, force bool) (*models.Spar, error) {
	if spar.Status == models.SparStatusCompleted {
		return spar, nil
	}
	if spar.Status != models.SparStatusActive {
		return nil, fmt.Errorf("%w: spar is %s, not active", errs.ErrInvalidState, spar.Status)
	}
	now := r.clock.Now().UTC()
	if !force && !spar.Ended(now) {
		return nil, fmt.Errorf("%w: spar is still running", errs.ErrInvalidState)
	}

	outcome := DetermineOutcome(spar.CreatorCommits, spar.OpponentCommits)
	var winnerID, loserID *string
	switch outcome {
	case models.SparOutcomeCreator:
		winnerID, loserID = &spar.CreatorID, spar.OpponentID
	case models.SparOutcomeOpponent:
		winnerID, loserID = spar.OpponentID, &spar.CreatorID
	}

	ok, err := r.spars.Transition(ctx, spar.ID, models.SparStatusActive, models.SparStatusCompleted, map[string]any{
		"winner_id":    winnerID,
		"outcome":      outcome,
		"completed_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another completion won the race; report what it stored.
		return r.spars.Get(ctx, spar.ID)
	}

	completed := *spar
	completed.Status = models.SparStatusCompleted
	completed.Outcome = outcome
	completed.WinnerID = winnerID
	completed.CompletedAt = &now
	switch outcome {
	case models.SparOutcomeCreator:
		completed.Winner = spar.Creator
	case models.SparOutcomeOpponent:
		completed.Winner = spar.Opponent
	}

	r.metrics.SparTransitions.WithLabelValues(string(models.SparStatusCompleted)).Inc()
	r.metrics.SparCompletions.WithLabelValues(string(outcome)).Inc()

	log := r.log.WithFields(logrus.Fields{
		"spar_id":          spar.ID,
		"outcome":          outcome,
		"creator_commits":  spar.CreatorCommits,
		"opponent_commits": spar.OpponentCommits,
		"forced":           force,
	})

	// The spar row is the authoritative result; record failures are logged, not rolled back.
	if winnerID != nil {
		if err := r.users.AddRecord(ctx, *winnerID, 1, 0); err != nil {
			log.WithError(err).WithField("user_id", *winnerID).Error("failed to record spar win")
		}
		if loserID != nil {
			if err := r.users.AddRecord(ctx, *loserID, 0, 1); err != nil {
				log.WithError(err).WithField("user_id", *loserID).Error("failed to record spar loss")
			}
		}
	}

	log.Info("spar completed")
	r.archive(ctx, &completed, log)
	return &completed, nil
}

func (r *Resolver) archive(ctx context.Context, spar *models.Spar, log logrus.FieldLogger) {
	if r.archiver == nil {
		return
	}
	commits, err := r.commits.ListForSpar(ctx, spar.ID)
	if err != nil {
		log.WithError(err).Warn("failed to load commits for archive")
		return
	}
	start := time.Now()
	if err := r.archiver.ArchiveResult(ctx, spar, commits); err != nil {
		log.WithError(err).Warn("failed to archive spar result")
		return
	}
	log.WithField("took", time.Since(start).String()).Debug("spar result archived")
}
