// Package repository defines the persistence contracts for users, spars and spar commits,
// plus their GORM implementation.
package repository

import (
	"context"
	"time"

	"buildinpublic-hub/models"
)

// UserRepository stores spar participants.
type UserRepository interface {
	// EnsureUser returns the user for handle, creating it on first sight.
	EnsureUser(ctx context.Context, profile UserProfile) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// AddRecord atomically adds wins and losses to the user's lifetime record.
	AddRecord(ctx context.Context, userID string, wins, losses int64) error
	Leaderboard(ctx context.Context, limit int) ([]models.User, error)
	// Search matches handles by case-insensitive prefix.
	Search(ctx context.Context, query string, limit int) ([]models.User, error)
}

// UserProfile is the identity the gateway hands us for the acting user.
type UserProfile struct {
	Handle    string
	AvatarURL *string
	Email     *string
}

// SparFilter narrows List results.
type SparFilter struct {
	Status models.SparStatus // empty = any
	Limit  int
}

// SparRepository stores spars. Every state change goes through Transition,
// a conditional write guarded by the expected current status.
type SparRepository interface {
	Create(ctx context.Context, spar *models.Spar) error
	// Get loads a spar with creator, opponent and winner.
	Get(ctx context.Context, id string) (*models.Spar, error)
	List(ctx context.Context, filter SparFilter) ([]models.Spar, error)
	ListByStatus(ctx context.Context, status models.SparStatus) ([]models.Spar, error)
	ListDueForStart(ctx context.Context, now time.Time) ([]models.Spar, error)
	// Transition moves a spar from -> to and applies fields, only if it is still in from.
	// It reports false when another writer got there first.
	Transition(ctx context.Context, id string, from, to models.SparStatus, fields map[string]any) (bool, error)
	// SetCommitCount stores a recomputed total; it is a no-op unless the spar is active.
	SetCommitCount(ctx context.Context, id string, role models.SparRole, count int64) (bool, error)
	MarkPaid(ctx context.Context, id string, role models.SparRole, paymentIntentID string) (bool, error)
}

// CommitRepository stores spar commits keyed by (spar id, commit sha).
type CommitRepository interface {
	// InsertIgnore inserts commits, skipping any whose (spar id, sha) already exists.
	// It returns how many rows were actually written.
	InsertIgnore(ctx context.Context, commits []models.SparCommit) (int64, error)
	Count(ctx context.Context, sparID, userID string) (int64, error)
	ListForSpar(ctx context.Context, sparID string) ([]models.SparCommit, error)
}

// DeveloperRepository stores tracked developers and their stats snapshots.
type DeveloperRepository interface {
	// Track adds handle, or refreshes the profile fields of an existing row.
	Track(ctx context.Context, profile DeveloperProfile) (*models.Developer, error)
	List(ctx context.Context) ([]models.Developer, error)
	RecordStats(ctx context.Context, stats *models.StatsHistory) error
	SetScore(ctx context.Context, id string, score float64) error
	Leaderboard(ctx context.Context, limit int) ([]models.Developer, error)
}

type DeveloperProfile struct {
	Handle          string
	FullName        *string
	AvatarURL       *string
	TwitterUsername *string
}
