package models

import (
	"strings"

	"golang.org/x/text/cases"
)

// User is a spar participant keyed by their GitHub handle.
// Rows are created lazily the first time a handle creates or accepts a spar.
type User struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	GitHubID       string  `gorm:"not null" json:"github_id"`
	GitHubUsername string  `gorm:"not null" json:"github_username"`
	HandleKey      string  `gorm:"uniqueIndex;not null" json:"-"` // folded GitHubUsername
	Email          *string `json:"email,omitempty"`
	AvatarURL      *string `json:"avatar_url,omitempty"`

	StripeCustomerID *string `json:"-"`

	SparWins   int64 `json:"spar_wins" gorm:"default:0"`
	SparLosses int64 `json:"spar_losses" gorm:"default:0"`

	Timestamps
}

var handleFolder = cases.Fold()

// HandleKey normalizes a GitHub handle for case-insensitive comparison.
func HandleKey(handle string) string {
	return handleFolder.String(strings.TrimSpace(handle))
}

// SameHandle reports whether two handles name the same GitHub account.
func SameHandle(a, b string) bool {
	return HandleKey(a) == HandleKey(b)
}
