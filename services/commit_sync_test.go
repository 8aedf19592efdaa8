package services

import (
	"context"
	"fmt"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"buildinpublic-hub/errs"
	"buildinpublic-hub/githubapi"
	"buildinpublic-hub/models"
	"buildinpublic-hub/repository"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windowSpar() *models.Spar {
	start := t0
	end := t0.Add(24 * time.Hour)
	return &models.Spar{ID: "spar-1", CreatorID: "u-1", Status: models.SparStatusActive, ActualStart: &start, ActualEnd: &end}
}

func pushEvent(at time.Time, repo string, commits ...githubapi.CommitRef) githubapi.Event {
	return githubapi.Event{
		Type:      githubapi.PushEventType,
		CreatedAt: at,
		Repo:      githubapi.EventRepo{Name: repo},
		Payload:   githubapi.Payload{Size: len(commits), Commits: commits},
	}
}

func TestQualifyingCommits_Window(t *testing.T) {
	spar := windowSpar()
	events := []githubapi.Event{
		pushEvent(t0.Add(-time.Second), "me/app", githubapi.CommitRef{SHA: "before", Message: "early"}),
		pushEvent(t0, "me/app", githubapi.CommitRef{SHA: "at-start", Message: "go"}),
		pushEvent(t0.Add(24*time.Hour), "me/app", githubapi.CommitRef{SHA: "at-end", Message: "last"}),
		pushEvent(t0.Add(24*time.Hour+time.Second), "me/app", githubapi.CommitRef{SHA: "after", Message: "late"}),
		{Type: "WatchEvent", CreatedAt: t0.Add(time.Hour)},
	}

	got := QualifyingCommits(spar, "u-1", events)

	shas := make([]string, 0, len(got))
	for _, c := range got {
		shas = append(shas, c.CommitSHA)
		assert.Equal(t, "spar-1", c.SparID)
		assert.Equal(t, "u-1", c.UserID)
	}
	assert.Equal(t, []string{"at-start", "at-end"}, shas)
}

func TestQualifyingCommits_OpenEndedWindow(t *testing.T) {
	spar := windowSpar()
	spar.ActualEnd = nil

	got := QualifyingCommits(spar, "u-1", []githubapi.Event{
		pushEvent(t0.Add(500*time.Hour), "me/app", githubapi.CommitRef{SHA: "a", Message: "x"}),
	})
	assert.Len(t, got, 1)

	spar.ActualStart = nil
	assert.Empty(t, QualifyingCommits(spar, "u-1", []githubapi.Event{
		pushEvent(t0.Add(time.Hour), "me/app", githubapi.CommitRef{SHA: "a", Message: "x"}),
	}))
}

func TestQualifyingCommits_Filtering(t *testing.T) {
	spar := windowSpar()
	long := strings.Repeat("é", 600)
	events := []githubapi.Event{
		pushEvent(t0.Add(time.Hour), "",
			githubapi.CommitRef{SHA: "m1", Message: "Merge pull request #4 from me/feature"},
			githubapi.CommitRef{SHA: "", Message: "no sha"},
			githubapi.CommitRef{SHA: "keep", Message: "merge later, lowercase is kept"},
			githubapi.CommitRef{SHA: "long", Message: long},
		),
		pushEvent(t0.Add(2*time.Hour), "me/app", githubapi.CommitRef{SHA: "keep", Message: "duplicate"}),
	}

	got := QualifyingCommits(spar, "u-1", events)
	require.Len(t, got, 2)

	assert.Equal(t, "keep", got[0].CommitSHA)
	assert.Equal(t, "unknown", *got[0].RepoName)
	assert.Equal(t, "https://github.com/unknown", *got[0].RepoURL)

	assert.Equal(t, "long", got[1].CommitSHA)
	assert.Equal(t, 500, len([]rune(*got[1].CommitMessage)))
}

func TestSyncParticipant_CountsStoredRows(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	spar := e.activeSpar(t, 24)

	e.source.push("alice", "alice/app", t0.Add(time.Hour), "a1", "a2")
	syncer := NewCommitSyncer(e.spars, e.commits, e.source, e.log, nil)

	assert.Equal(t, int64(2), syncer.SyncParticipant(ctx, spar, models.SparRoleCreator))

	e.source.push("alice", "alice/app", t0.Add(2*time.Hour), "a2", "a3")
	assert.Equal(t, int64(3), syncer.SyncParticipant(ctx, spar, models.SparRoleCreator))

	stored, err := e.spars.Get(ctx, spar.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.CreatorCommits)
	assert.Equal(t, int64(0), stored.OpponentCommits)
}

func TestSyncParticipant_FetchFailureKeepsPriorTotal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	spar := e.activeSpar(t, 24)
	spar.OpponentCommits = 7

	e.source.fail["bob"] = fmt.Errorf("%w: boom", errs.ErrUpstreamFetch)
	e.source.push("alice", "alice/app", t0.Add(time.Hour), "a1")

	creator, opponent := NewCommitSyncer(e.spars, e.commits, e.source, e.log, nil).SyncBoth(ctx, spar)
	assert.Equal(t, int64(1), creator, "creator sync unaffected by opponent failure")
	assert.Equal(t, int64(7), opponent)

	var warned bool
	for _, entry := range e.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "failed to fetch commit activity" {
			warned = true
			assert.Equal(t, "bob", entry.Data["handle"])
		}
	}
	assert.True(t, warned)
}

func TestSyncParticipant_InactiveIsNoop(t *testing.T) {
	e := newEnv(t)
	spar := windowSpar()
	spar.Status = models.SparStatusCompleted
	spar.CreatorCommits = 4

	got := NewCommitSyncer(e.spars, e.commits, e.source, e.log, nil).SyncParticipant(context.Background(), spar, models.SparRoleCreator)
	assert.Equal(t, int64(4), got)
	assert.Zero(t, e.source.totalCalls())
}

// failingCommits fails one participant's writes or counts.
type failingCommits struct {
	repository.CommitRepository
	insertFor string
	countFor  string
}

func (f failingCommits) InsertIgnore(ctx context.Context, commits []models.SparCommit) (int64, error) {
	if len(commits) > 0 && commits[0].UserID == f.insertFor {
		return 0, errs.ErrPersistence
	}
	return f.CommitRepository.InsertIgnore(ctx, commits)
}

func (f failingCommits) Count(ctx context.Context, sparID, userID string) (int64, error) {
	if userID == f.countFor {
		return 0, errs.ErrPersistence
	}
	return f.CommitRepository.Count(ctx, sparID, userID)
}

type failingCounts struct {
	repository.SparRepository
	role models.SparRole
}

func (f failingCounts) SetCommitCount(ctx context.Context, id string, role models.SparRole, count int64) (bool, error) {
	if role == f.role {
		return false, errors.New("write timeout")
	}
	return f.SparRepository.SetCommitCount(ctx, id, role, count)
}

func TestSyncBoth_StoreFailureIsolated(t *testing.T) {
	cases := []struct {
		name    string
		wrap    func(e *env, spar *models.Spar) (repository.SparRepository, repository.CommitRepository)
		message string
	}{
		{
			name: "insert",
			wrap: func(e *env, spar *models.Spar) (repository.SparRepository, repository.CommitRepository) {
				return e.spars, failingCommits{CommitRepository: e.commits, insertFor: spar.CreatorID}
			},
			message: "failed to store spar commits",
		},
		{
			name: "count",
			wrap: func(e *env, spar *models.Spar) (repository.SparRepository, repository.CommitRepository) {
				return e.spars, failingCommits{CommitRepository: e.commits, countFor: spar.CreatorID}
			},
			message: "failed to count spar commits",
		},
		{
			name: "set count",
			wrap: func(e *env, spar *models.Spar) (repository.SparRepository, repository.CommitRepository) {
				return failingCounts{SparRepository: e.spars, role: models.SparRoleCreator}, e.commits
			},
			message: "failed to update spar commit count",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			spar := e.activeSpar(t, 24)

			e.source.push("alice", "alice/app", t0.Add(time.Hour), "a1", "a2", "a3")
			e.source.push("bob", "bob/app", t0.Add(time.Hour), "b1", "b2")

			spars, commits := tc.wrap(e, spar)
			creator, opponent := NewCommitSyncer(spars, commits, e.source, e.log, nil).SyncBoth(ctx, spar)
			assert.Equal(t, int64(0), creator, "failing side keeps its prior total")
			assert.Equal(t, int64(2), opponent)

			stored, err := e.spars.Get(ctx, spar.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(0), stored.CreatorCommits)
			assert.Equal(t, int64(2), stored.OpponentCommits)

			var logged bool
			for _, entry := range e.hook.AllEntries() {
				if entry.Level == logrus.ErrorLevel && entry.Message == tc.message {
					logged = true
					assert.Equal(t, models.SparRoleCreator, entry.Data["role"])
				}
			}
			assert.True(t, logged)
		})
	}
}

func TestSync_ConcurrentCallsConverge(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	spar := e.activeSpar(t, 24)

	e.source.push("alice", "alice/app", t0.Add(time.Hour), "a1", "a2")
	e.source.push("alice", "alice/app", t0.Add(2*time.Hour), "a3")
	e.source.push("bob", "bob/app", t0.Add(time.Hour), "b1")

	const callers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Sync(ctx, spar.ID)
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		assert.NoError(t, err)
	}

	stored, err := e.spars.Get(ctx, spar.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SparStatusActive, stored.Status)
	assert.Equal(t, int64(3), stored.CreatorCommits)
	assert.Equal(t, int64(1), stored.OpponentCommits)

	var rows int64
	require.NoError(t, e.db.Model(&models.SparCommit{}).Where("spar_id = ?", spar.ID).Count(&rows).Error)
	assert.Equal(t, int64(4), rows)
}
