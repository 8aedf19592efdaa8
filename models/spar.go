package models

import "time"

type SparStatus string

const (
	SparStatusPending   SparStatus = "pending"
	SparStatusAccepted  SparStatus = "accepted"
	SparStatusActive    SparStatus = "active"
	SparStatusCompleted SparStatus = "completed"
	SparStatusCancelled SparStatus = "cancelled"
)

// sparTransitions lists every legal forward move of the spar state machine.
var sparTransitions = map[SparStatus][]SparStatus{
	SparStatusPending:  {SparStatusAccepted, SparStatusCancelled},
	SparStatusAccepted: {SparStatusActive, SparStatusCancelled},
	SparStatusActive:   {SparStatusCompleted},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s SparStatus) CanTransitionTo(next SparStatus) bool {
	for _, allowed := range sparTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s SparStatus) Terminal() bool {
	return s == SparStatusCompleted || s == SparStatusCancelled
}

func (s SparStatus) Valid() bool {
	switch s {
	case SparStatusPending, SparStatusAccepted, SparStatusActive, SparStatusCompleted, SparStatusCancelled:
		return true
	}
	return false
}

// SparOutcome separates "not decided yet" from "decided as a tie";
// WinnerID alone is nil in both cases.
type SparOutcome string

const (
	SparOutcomeUndecided SparOutcome = ""
	SparOutcomeCreator   SparOutcome = "creator"
	SparOutcomeOpponent  SparOutcome = "opponent"
	SparOutcomeTie       SparOutcome = "tie"
)

type SparRole string

const (
	SparRoleCreator  SparRole = "creator"
	SparRoleOpponent SparRole = "opponent"
)

func (r SparRole) Valid() bool {
	return r == SparRoleCreator || r == SparRoleOpponent
}

// Allowed spar lengths, in hours.
var SparDurations = []int{24, 48, 72}

// Spar is a time-boxed commit-count battle between two GitHub users.
type Spar struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	CreatorID      string  `gorm:"type:uuid;index;not null" json:"creator_id"`
	Creator        *User   `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	OpponentID     *string `gorm:"type:uuid;index" json:"opponent_id,omitempty"`
	Opponent       *User   `gorm:"foreignKey:OpponentID" json:"opponent,omitempty"`
	OpponentHandle *string `json:"opponent_github_username,omitempty"` // pinned before acceptance

	Title         string  `gorm:"type:varchar(100);not null" json:"title"`
	Description   *string `json:"description,omitempty"`
	Slug          string  `gorm:"index" json:"slug"`
	DurationHours int     `gorm:"not null;check:duration_hours IN (24,48,72)" json:"duration_hours"`
	EntryFeeCents int     `json:"entry_fee_cents" gorm:"default:0"`

	Status SparStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`

	ScheduledStart *time.Time `gorm:"index" json:"scheduled_start,omitempty"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	CreatorCommits  int64 `json:"creator_commits" gorm:"default:0"`
	OpponentCommits int64 `json:"opponent_commits" gorm:"default:0"`

	WinnerID *string     `gorm:"type:uuid" json:"winner_id,omitempty"`
	Winner   *User       `gorm:"foreignKey:WinnerID" json:"winner,omitempty"`
	Outcome  SparOutcome `gorm:"type:varchar(16);default:''" json:"outcome"`

	CreatorPaid                 bool    `json:"creator_paid" gorm:"default:false"`
	OpponentPaid                bool    `json:"opponent_paid" gorm:"default:false"`
	StripePaymentIntentCreator  *string `json:"-"`
	StripePaymentIntentOpponent *string `json:"-"`

	Commits []SparCommit `gorm:"foreignKey:SparID;constraint:OnDelete:CASCADE" json:"-"`

	Timestamps
}

func (s *Spar) Duration() time.Duration {
	return time.Duration(s.DurationHours) * time.Hour
}

// Ended reports whether the battle window has closed at now.
func (s *Spar) Ended(now time.Time) bool {
	return s.ActualEnd != nil && !now.Before(*s.ActualEnd)
}

// StartDue reports whether an accepted spar has reached its scheduled start.
func (s *Spar) StartDue(now time.Time) bool {
	return s.Status == SparStatusAccepted && s.ScheduledStart != nil && !now.Before(*s.ScheduledStart)
}

// RoleOf returns the role userID plays in the spar, if any.
func (s *Spar) RoleOf(userID string) (SparRole, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == s.CreatorID:
		return SparRoleCreator, true
	case s.OpponentID != nil && userID == *s.OpponentID:
		return SparRoleOpponent, true
	}
	return "", false
}

func (s *Spar) CommitsFor(role SparRole) int64 {
	if role == SparRoleCreator {
		return s.CreatorCommits
	}
	return s.OpponentCommits
}

// Participant returns the user record loaded for role (may be nil if not preloaded).
func (s *Spar) Participant(role SparRole) *User {
	if role == SparRoleCreator {
		return s.Creator
	}
	return s.Opponent
}

// ParticipantID returns the user id for role, or "" while the opponent seat is open.
func (s *Spar) ParticipantID(role SparRole) string {
	if role == SparRoleCreator {
		return s.CreatorID
	}
	if s.OpponentID == nil {
		return ""
	}
	return *s.OpponentID
}
