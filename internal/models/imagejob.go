package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Image job statuses. Terminal states are final; a failed job has already
// refunded its cost by the time the status is observable.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Supported render resolutions (square output, pixels per side).
var Resolutions = []string{"512", "768", "1024"}

// ValidResolution reports whether s names a supported resolution.
func ValidResolution(s string) bool {
	for _, r := range Resolutions {
		if s == r {
			return true
		}
	}
	return false
}

// ImageJob represents one asynchronous render job.
type ImageJob struct {
	ID           surrealmodels.RecordID  `json:"id"`
	User         surrealmodels.RecordID  `json:"user"`
	Conversation *surrealmodels.RecordID `json:"conversation,omitempty"`
	Prompt       string                  `json:"prompt"`
	Resolution   string                  `json:"resolution"`
	Status       string                  `json:"status"`
	Cost         int                     `json:"cost"`
	AssetRef     *string                 `json:"asset_ref,omitempty"`
	Error        *string                 `json:"error,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
	CompletedAt  *time.Time              `json:"completed_at,omitempty"`
}
