package models

import "time"

// SparCommit is one qualifying commit credited to a participant.
// (spar_id, commit_sha) is the natural key; re-ingesting a commit is a no-op.
type SparCommit struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	SparID        string    `gorm:"type:uuid;not null;uniqueIndex:idx_spar_commits_spar_sha,priority:1" json:"spar_id"`
	UserID        string    `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CommitSHA     string    `gorm:"not null;uniqueIndex:idx_spar_commits_spar_sha,priority:2" json:"commit_sha"`
	CommitMessage *string   `json:"commit_message,omitempty"`
	RepoName      *string   `json:"repo_name,omitempty"`
	RepoURL       *string   `json:"repo_url,omitempty"`
	CommittedAt   time.Time `gorm:"index;not null" json:"committed_at"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}
