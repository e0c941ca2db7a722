package media

import (
	"io"
	"time"
)

// Type classifies an ingested attachment.
type Type string

const (
	TypePhoto Type = "photo"
	TypeVideo Type = "video"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t == TypePhoto || t == TypeVideo
}

// Item is the canonical record every inbound channel converges to.
// Created exactly once per upstream message identifier and never mutated.
type Item struct {
	ID          string         `json:"id"`
	MessageID   string         `json:"message_id"`
	GroupID     string         `json:"group_id"`
	SenderPhone string         `json:"sender_phone"`
	SenderName  string         `json:"sender_name,omitempty"`
	MediaType   Type           `json:"media_type"`
	FilePath    string         `json:"file_path"`
	MimeType    string         `json:"mime_type,omitempty"`
	FileSize    int64          `json:"file_size,omitempty"`
	Caption     string         `json:"caption,omitempty"`
	ReceivedAt  time.Time      `json:"received_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// IngestInput carries everything needed to persist one attachment.
type IngestInput struct {
	// MessageID is the dedupe key; Twilio callers pass it already
	// suffixed with the attachment index.
	MessageID   string
	GroupID     string
	SenderPhone string
	SenderName  string
	MediaType   Type
	Mime        string
	Caption     string
	ReceivedAt  time.Time
	Metadata    map[string]any
	// Reader provides the raw bytes; caller is responsible for closing.
	Reader io.Reader
}

// ListFilter narrows List results.
type ListFilter struct {
	GroupID   string
	MediaType Type
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}
