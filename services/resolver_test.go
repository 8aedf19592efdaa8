package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"buildinpublic-hub/errs"
	"buildinpublic-hub/models"
	"buildinpublic-hub/repository"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetermineOutcome(t *testing.T) {
	assert.Equal(t, models.SparOutcomeCreator, DetermineOutcome(3, 1))
	assert.Equal(t, models.SparOutcomeOpponent, DetermineOutcome(0, 1))
	assert.Equal(t, models.SparOutcomeTie, DetermineOutcome(2, 2))
	assert.Equal(t, models.SparOutcomeTie, DetermineOutcome(0, 0))
}

// Scenario A: create, accept, start, sync (3,1), run out the clock, sync again.
func TestSparLifecycle_CreatorWins(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	spar := e.activeSpar(t, 24)

	e.source.push("alice", "alice/app", t0.Add(time.Hour), "a1", "a2")
	e.source.push("alice", "alice/lib", t0.Add(3*time.Hour), "a3")
	e.source.push("bob", "bob/site", t0.Add(2*time.Hour), "b1")

	res, err := e.svc.Sync(ctx, spar.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.CreatorCommits)
	assert.Equal(t, int64(1), res.OpponentCommits)
	assert.False(t, res.Completed)
	assert.Equal(t, models.SparStatusActive, res.Spar.Status)

	e.clock.Advance(25 * time.Hour)
	res, err = e.svc.Sync(ctx, spar.ID)
	require.NoError(t, err)
	assert.True(t, res.Completed)

	done, err := e.svc.Get(ctx, spar.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SparStatusCompleted, done.Status)
	assert.Equal(t, models.SparOutcomeCreator, done.Outcome)
	require.NotNil(t, done.WinnerID)
	assert.Equal(t, done.CreatorID, *done.WinnerID)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, int64(3), done.CreatorCommits)
	assert.Equal(t, int64(1), done.OpponentCommits)

	creator := e.user(t, "alice")
	opponent := e.user(t, "bob")
	assert.Equal(t, int64(1), creator.SparWins)
	assert.Equal(t, int64(0), creator.SparLosses)
	assert.Equal(t, int64(0), opponent.SparWins)
	assert.Equal(t, int64(1), opponent.SparLosses)

	assert.Equal(t, []string{spar.ID}, e.archive.archived)
	assert.Equal(t, 4, e.archive.commits[spar.ID])

	// Later syncs and completions change nothing.
	calls := e.source.totalCalls()
	_, err = e.svc.Sync(ctx, spar.ID)
	require.NoError(t, err)
	assert.Equal(t, calls, e.source.totalCalls())

	_, err = e.svc.ForceComplete(ctx, spar.ID, repository.UserProfile{Handle: "root"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.user(t, "alice").SparWins)
	assert.Equal(t, int64(1), e.user(t, "bob").SparLosses)
	assert.Len(t, e.archive.archived, 1)
}

// Scenario B: equal counts end in a tie with no record changes.
func TestSparLifecycle_Tie(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	spar := e.activeSpar(t, 48)

	e.source.push("alice", "alice/app", t0.Add(time.Hour), "a1", "a2")
	e.source.push("bob", "bob/app", t0.Add(time.Hour), "b1", "b2")

	e.clock.Advance(49 * time.Hour)
	res, err := e.svc.Sync(ctx, spar.ID)
	require.NoError(t, err)
	require.True(t, res.Completed)

	assert.Equal(t, models.SparOutcomeTie, res.Spar.Outcome)
	assert.Nil(t, res.Spar.WinnerID)
	assert.Equal(t, int64(2), res.Spar.CreatorCommits)
	assert.Equal(t, int64(2), res.Spar.OpponentCommits)

	for _, handle := range []string{"alice", "bob"} {
		u := e.user(t, handle)
		assert.Zero(t, u.SparWins, handle)
		assert.Zero(t, u.SparLosses, handle)
	}
}

// Scenario C: syncing a pending spar fetches nothing and does not fail.
func TestSync_PendingIsNoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	spar, err := e.svc.Create(ctx, alice, CreateSparInput{Title: "race", DurationHours: 24})
	require.NoError(t, err)
	e.source.push("alice", "alice/app", t0, "a1")

	res, err := e.svc.Sync(ctx, spar.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SparStatusPending, res.Spar.Status)
	assert.Zero(t, res.CreatorCommits)
	assert.Zero(t, res.OpponentCommits)
	assert.Zero(t, e.source.totalCalls())
}

func TestSync_Idempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	spar := e.activeSpar(t, 24)
	e.source.push("alice", "alice/app", t0.Add(time.Hour), "a1", "a2")
	e.source.push("bob", "bob/app", t0.Add(time.Hour), "b1")

	first, err := e.svc.Sync(ctx, spar.ID)
	require.NoError(t, err)
	second, err := e.svc.Sync(ctx, spar.ID)
	require.NoError(t, err)

	assert.Equal(t, first.CreatorCommits, second.CreatorCommits)
	assert.Equal(t, first.OpponentCommits, second.OpponentCommits)

	_, commits, err := e.svc.Commits(ctx, spar.ID)
	require.NoError(t, err)
	assert.Len(t, commits, 3)
}

func TestSync_AutoStartsDueSpar(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	spar, err := e.svc.Create(ctx, alice, CreateSparInput{Title: "race", DurationHours: 24})
	require.NoError(t, err)
	_, err = e.svc.Accept(ctx, spar.ID, bob)
	require.NoError(t, err)

	res, err := e.svc.Sync(ctx, spar.ID)
	require.NoError(t, err)
	assert.False(t, res.Started, "grace period not over")
	assert.Equal(t, models.SparStatusAccepted, res.Spar.Status)

	e.clock.Advance(5 * time.Minute)
	res, err = e.svc.Sync(ctx, spar.ID)
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.Equal(t, models.SparStatusActive, res.Spar.Status)
	require.NotNil(t, res.Spar.ActualStart)
	assert.True(t, res.Spar.ActualStart.Equal(t0.Add(5*time.Minute)))
}

func TestForceComplete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	spar := e.activeSpar(t, 72)
	e.source.push("bob", "bob/app", t0.Add(time.Hour), "b1")
	_, err := e.svc.Sync(ctx, spar.ID)
	require.NoError(t, err)

	_, err = e.svc.ForceComplete(ctx, spar.ID, alice)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	done, err := e.svc.ForceComplete(ctx, spar.ID, repository.UserProfile{Handle: "ROOT"})
	require.NoError(t, err)
	assert.Equal(t, models.SparStatusCompleted, done.Status)
	assert.Equal(t, models.SparOutcomeOpponent, done.Outcome)
	assert.Equal(t, int64(1), e.user(t, "bob").SparWins)
}

func TestResolver_RejectsUnfinished(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	spar := e.activeSpar(t, 24)
	r := NewResolver(e.spars, e.users, e.commits, nil, e.clock, e.log, nil)

	_, err := r.Complete(ctx, spar, false)
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	pending, err := e.svc.Create(ctx, alice, CreateSparInput{Title: "later", DurationHours: 24})
	require.NoError(t, err)
	_, err = r.Complete(ctx, pending, true)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestResolver_CounterFailureStillCompletes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	spar := e.activeSpar(t, 24)
	e.source.push("alice", "alice/app", t0.Add(time.Hour), "a1")
	_, err := e.svc.Sync(ctx, spar.ID)
	require.NoError(t, err)

	stored, err := e.spars.Get(ctx, spar.ID)
	require.NoError(t, err)
	e.clock.Advance(24 * time.Hour)

	e.archive.err = errors.New("bucket gone")
	r := NewResolver(e.spars, flakyUsers{e.users}, e.commits, e.archive, e.clock, e.log, nil)
	done, err := r.Complete(ctx, stored, false)
	require.NoError(t, err)
	assert.Equal(t, models.SparStatusCompleted, done.Status)
	assert.Equal(t, models.SparOutcomeCreator, done.Outcome)

	reloaded, err := e.spars.Get(ctx, spar.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SparStatusCompleted, reloaded.Status)
	assert.Zero(t, e.user(t, "alice").SparWins)

	var recordErrors int
	for _, entry := range e.hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel && (entry.Message == "failed to record spar win" || entry.Message == "failed to record spar loss") {
			recordErrors++
		}
	}
	assert.Equal(t, 2, recordErrors)
}

func TestResolver_LosingRaceReturnsStoredSpar(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	spar := e.activeSpar(t, 24)
	e.clock.Advance(24 * time.Hour)

	r := NewResolver(e.spars, e.users, e.commits, nil, e.clock, e.log, nil)
	stale := *spar
	_, err := r.Complete(ctx, spar, false)
	require.NoError(t, err)

	again, err := r.Complete(ctx, &stale, false)
	require.NoError(t, err)
	assert.Equal(t, models.SparStatusCompleted, again.Status)
	assert.Equal(t, models.SparOutcomeTie, again.Outcome)
}

func TestSweep(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	finishing := e.activeSpar(t, 24)
	e.source.push("alice", "alice/app", t0.Add(time.Hour), "a1")

	e.clock.Advance(23 * time.Hour)
	waiting, err := e.svc.Create(ctx, repository.UserProfile{Handle: "dave"}, CreateSparInput{Title: "next", DurationHours: 48})
	require.NoError(t, err)
	_, err = e.svc.Accept(ctx, waiting.ID, carol)
	require.NoError(t, err)

	e.clock.Advance(2 * time.Hour)
	report, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Started: 1, Synced: 2, Completed: 1}, report)

	done, err := e.svc.Get(ctx, finishing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SparStatusCompleted, done.Status)
	assert.Equal(t, models.SparOutcomeCreator, done.Outcome)

	started, err := e.svc.Get(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SparStatusActive, started.Status)

	again, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Synced: 1}, again)
}
