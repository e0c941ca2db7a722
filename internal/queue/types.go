// Package queue tracks the approval-gated upload queue. Every media item
// queued for a destination moves through a fixed status lifecycle; nothing
// leaves for a destination without passing through approved.
package queue

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// AllStatuses lists every queue status.
var AllStatuses = []Status{
	StatusPending, StatusApproved, StatusRejected,
	StatusUploading, StatusCompleted, StatusFailed,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// CanTransition reports whether a queue entry may move from one status to
// another. Completed and rejected are terminal; failed entries can only
// come back through a manual retry to approved.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	case StatusApproved:
		return to == StatusUploading
	case StatusUploading:
		return to == StatusCompleted || to == StatusFailed || to == StatusApproved
	case StatusFailed:
		return to == StatusApproved
	case StatusCompleted, StatusRejected:
		return false
	default:
		return false
	}
}

// ValidateTransition returns ErrInvalidTransition when the move is not
// allowed. Same-status moves are no-ops.
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Entry is one upload queue row.
type Entry struct {
	ID                string     `json:"id"`
	MediaID           string     `json:"media_id"`
	DestinationID     string     `json:"destination_id"`
	Status            Status     `json:"status"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	RetryCount        int        `json:"retry_count"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
	UploadStartedAt   *time.Time `json:"upload_started_at,omitempty"`
	UploadCompletedAt *time.Time `json:"upload_completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Populated by List; nil on single-entry reads.
	Media       *MediaSummary       `json:"media,omitempty"`
	Destination *DestinationSummary `json:"destination,omitempty"`
}

// MediaSummary is the slice of the media item carried on listed entries
// so the review dashboard can render a row without extra lookups.
type MediaSummary struct {
	MessageID string `json:"message_id"`
	GroupID   string `json:"group_id"`
	MediaType string `json:"media_type"`
	FilePath  string `json:"file_path"`
	Caption   string `json:"caption,omitempty"`
}

// DestinationSummary is the slice of the destination carried on listed
// entries.
type DestinationSummary struct {
	Name string `json:"name"`
	Type string `json:"destination_type"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Status        Status
	DestinationID string
	MediaID       string
	Limit         int
	Offset        int
}

// Stats counts queue entries per status.
type Stats struct {
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Uploading int `json:"uploading"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}
