package models

import "time"

// commitWeight is the leaderboard points awarded per pushed commit.
const commitWeight = 0.5

// Developer is a tracked builder on the public leaderboard. Unlike User, a developer
// need not have ever opened a spar; rows are added by tracking a GitHub handle.
type Developer struct {
	ID              string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username        string  `gorm:"not null" json:"username"`
	HandleKey       string  `gorm:"uniqueIndex;not null" json:"-"`
	FullName        *string `json:"full_name,omitempty"`
	AvatarURL       *string `json:"avatar_url,omitempty"`
	TwitterUsername *string `json:"twitter_username,omitempty"`
	TotalScore      float64 `gorm:"default:0" json:"total_score"`

	Timestamps
}

// StatsHistory is one snapshot of a developer's activity. Twitter columns are kept
// for existing rows and always written as zero.
type StatsHistory struct {
	ID                      string    `gorm:"primaryKey;type:uuid" json:"id"`
	DeveloperID             string    `gorm:"type:uuid;index;not null" json:"developer_id"`
	GitHubCommitsLast30Days int64     `gorm:"column:github_commits_last_30_days;default:0" json:"github_commits_last_30_days"`
	TwitterFollowers        int64     `gorm:"default:0" json:"twitter_followers"`
	TwitterEngagementScore  float64   `gorm:"default:0" json:"twitter_engagement_score"`
	RecordedAt              time.Time `gorm:"index;not null" json:"recorded_at"`
}

func (StatsHistory) TableName() string { return "stats_history" }

// ScoreFor turns a commit count into leaderboard points.
func ScoreFor(commits int64) float64 {
	return float64(commits) * commitWeight
}
