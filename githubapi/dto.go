package githubapi

import "time"

// PushEventType is the GitHub event type carrying commits.
const PushEventType = "PushEvent"

// Event is the subset of a GitHub public event the spar sync needs.
type Event struct {
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Repo      EventRepo `json:"repo"`
	Payload   Payload   `json:"payload"`
}

type EventRepo struct {
	Name string `json:"name"`
}

type Payload struct {
	Size    int         `json:"size"`
	Commits []CommitRef `json:"commits"`
}

type CommitRef struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
}
