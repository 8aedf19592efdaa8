package services

import (
	"context"
	"errors"

	"buildinpublic-hub/errs"
	"buildinpublic-hub/models"

	"github.com/sirupsen/logrus"
)

// SyncResult is what a single sync call observed.
type SyncResult struct {
	Spar            *models.Spar `json:"spar"`
	CreatorCommits  int64        `json:"creator_commits"`
	OpponentCommits int64        `json:"opponent_commits"`
	Started         bool         `json:"started"`
	Completed       bool         `json:"completed"`
}

// Sync refreshes both participants' tallies and completes the spar once its window has closed.
// An accepted spar past its scheduled start is activated first. Syncing a spar that is
// not active is a silent no-op.
func (s *SparService) Sync(ctx context.Context, id string) (*SyncResult, error) {
	spar, err := s.spars.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.syncSpar(ctx, spar)
}

func (s *SparService) syncSpar(ctx context.Context, spar *models.Spar) (*SyncResult, error) {
	res := &SyncResult{}

	if spar.StartDue(s.clock.Now()) {
		if err := s.activate(ctx, spar); err != nil {
			if !errors.Is(err, errs.ErrInvalidState) {
				return nil, err
			}
			// Someone else started or cancelled it; continue from what is stored.
			if spar, err = s.spars.Get(ctx, spar.ID); err != nil {
				return nil, err
			}
		} else {
			res.Started = true
		}
	}

	if spar.Status != models.SparStatusActive {
		res.Spar = spar
		res.CreatorCommits, res.OpponentCommits = spar.CreatorCommits, spar.OpponentCommits
		return res, nil
	}

	res.CreatorCommits, res.OpponentCommits = s.syncer.SyncBoth(ctx, spar)

	// Counts were written by the syncer; read them back before judging the outcome.
	fresh, err := s.spars.Get(ctx, spar.ID)
	if err != nil {
		return nil, err
	}
	res.Spar = fresh

	if fresh.Status == models.SparStatusActive && fresh.Ended(s.clock.Now()) {
		completed, err := s.resolver.Complete(ctx, fresh, false)
		if err != nil {
			return nil, err
		}
		res.Spar = completed
		res.Completed = completed.Status == models.SparStatusCompleted
	}
	return res, nil
}

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	Started   int `json:"started"`
	Synced    int `json:"synced"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// StartDue activates every accepted spar whose scheduled start has passed.
func (s *SparService) StartDue(ctx context.Context) (int, error) {
	due, err := s.spars.ListDueForStart(ctx, s.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	started := 0
	for i := range due {
		spar := &due[i]
		if err := s.activate(ctx, spar); err != nil {
			s.log.WithError(err).WithField("spar_id", spar.ID).Warn("auto-start skipped")
			continue
		}
		started++
	}
	return started, nil
}

// Sweep runs one batch pass: auto-start due spars, then sync every active spar and
// complete the ones whose window has closed. A failing spar is logged and skipped.
func (s *SparService) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	started, err := s.StartDue(ctx)
	if err != nil {
		return report, err
	}
	report.Started = started

	active, err := s.spars.ListByStatus(ctx, models.SparStatusActive)
	if err != nil {
		return report, err
	}
	for i := range active {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		spar := &active[i]
		res, err := s.syncSpar(ctx, spar)
		if err != nil {
			report.Failed++
			s.log.WithError(err).WithField("spar_id", spar.ID).Error("sweep failed for spar")
			continue
		}
		report.Synced++
		if res.Completed {
			report.Completed++
		}
	}

	s.log.WithFields(logrus.Fields{
		"started":   report.Started,
		"synced":    report.Synced,
		"completed": report.Completed,
		"failed":    report.Failed,
	}).Info("spar sweep finished")
	return report, nil
}
