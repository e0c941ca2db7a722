package webhooklog

import "time"

// Entry is one inbound (or synthetic outbound) webhook call.
type Entry struct {
	ID           string         `json:"id"`
	Payload      map[string]any `json:"payload"`
	Processed    bool           `json:"processed"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Derived payload keys written during enrichment. Prefixed with an
// underscore to keep them apart from provider-native fields.
const (
	KeyEventType   = "_event_type"
	KeyMessageType = "_message_type"
	KeySenderPhone = "_sender_phone"
	KeySenderName  = "_sender_name"
	KeyTextPreview = "_text_preview"
	KeyMediaFile   = "_media_file"
	KeyError       = "_error"
	KeyReceivedAt  = "_received_at"
)

// Event types recorded under KeyEventType.
const (
	EventTypeMessage  = "message"
	EventTypeStatus   = "status"
	EventTypeUnknown  = "unknown"
	EventTypeOutbound = "outbound_message"
)

// ListFilter narrows List results.
type ListFilter struct {
	Processed *bool
	Limit     int
	Offset    int
}
