package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"buildinpublic-hub/githubapi"
	"buildinpublic-hub/models"
	"buildinpublic-hub/repository"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

var (
	alice = repository.UserProfile{Handle: "alice"}
	bob   = repository.UserProfile{Handle: "bob"}
	carol = repository.UserProfile{Handle: "carol"}
)

// fakeSource serves canned events per handle and counts calls.
type fakeSource struct {
	mu     sync.Mutex
	events map[string][]githubapi.Event
	fail   map[string]error
	calls  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events: map[string][]githubapi.Event{},
		fail:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (f *fakeSource) RecentEvents(_ context.Context, handle string) ([]githubapi.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[handle]++
	if err := f.fail[handle]; err != nil {
		return nil, err
	}
	return f.events[handle], nil
}

func (f *fakeSource) push(handle, repo string, at time.Time, shas ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := githubapi.Event{Type: githubapi.PushEventType, CreatedAt: at, Repo: githubapi.EventRepo{Name: repo}}
	for _, sha := range shas {
		ev.Payload.Commits = append(ev.Payload.Commits, githubapi.CommitRef{SHA: sha, Message: "work on " + sha})
	}
	ev.Payload.Size = len(ev.Payload.Commits)
	f.events[handle] = append([]githubapi.Event{ev}, f.events[handle]...)
}

func (f *fakeSource) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []string
	commits  map[string]int
	err      error
}

func (a *fakeArchiver) ArchiveResult(_ context.Context, spar *models.Spar, commits []models.SparCommit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.commits == nil {
		a.commits = map[string]int{}
	}
	a.archived = append(a.archived, spar.ID)
	a.commits[spar.ID] = len(commits)
	return nil
}

// flakyUsers fails AddRecord while leaving the rest of the repository intact.
type flakyUsers struct {
	repository.UserRepository
}

func (flakyUsers) AddRecord(context.Context, string, int64, int64) error {
	return errors.New("counter store down")
}

type env struct {
	db      *gorm.DB
	clock   *clockwork.FakeClock
	source  *fakeSource
	archive *fakeArchiver
	spars   *repository.SparRepo
	users   *repository.UserRepo
	commits *repository.CommitRepo
	log     *logrus.Logger
	hook    *test.Hook
	svc     *SparService
}

type envOption func(*SparDeps)

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Both participants sync concurrently; serialize access to the in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repository.Migrate(db))

	log, hook := test.NewNullLogger()
	e := &env{
		db:      db,
		clock:   clockwork.NewFakeClockAt(t0),
		source:  newFakeSource(),
		archive: &fakeArchiver{},
		spars:   repository.NewSparRepo(db),
		users:   repository.NewUserRepo(db),
		commits: repository.NewCommitRepo(db),
		log:     log,
		hook:    hook,
	}
	deps := SparDeps{
		Spars:    e.spars,
		Users:    e.users,
		Commits:  e.commits,
		Source:   e.source,
		Archiver: e.archive,
		Admins:   NewAllowlistPolicy([]string{"root"}),
		Clock:    e.clock,
		Log:      log,
		Settings: SparSettings{GracePeriod: 5 * time.Minute, EntryFeeCents: 999},
	}
	for _, o := range opts {
		o(&deps)
	}
	e.svc = NewSparService(deps)
	return e
}

// activeSpar creates a spar between alice and bob, accepts it and starts it at t0.
func (e *env) activeSpar(t *testing.T, hours int) *models.Spar {
	t.Helper()
	ctx := context.Background()
	spar, err := e.svc.Create(ctx, alice, CreateSparInput{Title: "Ship it", DurationHours: hours})
	require.NoError(t, err)
	_, err = e.svc.Accept(ctx, spar.ID, bob)
	require.NoError(t, err)
	started, err := e.svc.Start(ctx, spar.ID, alice)
	require.NoError(t, err)
	return started
}

func (e *env) user(t *testing.T, handle string) *models.User {
	t.Helper()
	u, err := e.users.EnsureUser(context.Background(), repository.UserProfile{Handle: handle})
	require.NoError(t, err)
	return u
}
