package media

import (
	"fmt"
	"strings"
	"time"
)

// TypeFromMime classifies a content type: video/* is video, anything else
// is treated as a photo.
func TypeFromMime(mime string) Type {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "video/") {
		return TypeVideo
	}
	return TypePhoto
}

// ExtensionFromMime derives a file extension from a content type, e.g.
// "image/jpeg" -> "jpeg", "video/mp4;codecs=avc1" -> "mp4". Unknown or
// malformed types fall back to "bin".
func ExtensionFromMime(mime string) string {
	_, sub, ok := strings.Cut(strings.TrimSpace(mime), "/")
	if !ok {
		return "bin"
	}
	sub, _, _ = strings.Cut(sub, ";")
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return "bin"
	}
	return sub
}

// AttachmentMessageID builds the per-attachment dedupe key for
// multi-attachment messages: "<sid>_<index>".
func AttachmentMessageID(messageSID string, index int) string {
	return fmt.Sprintf("%s_%d", messageSID, index)
}

// StorageKey builds the blob-store key for an ingested attachment:
// "<group>/<ingest_ms>_<message_id>.<ext>".
func StorageKey(groupID, messageID, mime string, ingestedAt time.Time) string {
	return fmt.Sprintf("%s/%d_%s.%s",
		groupID, ingestedAt.UnixMilli(), messageID, ExtensionFromMime(mime))
}
