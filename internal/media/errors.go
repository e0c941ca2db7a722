package media

import "errors"

var (
	// ErrNotFound indicates the requested media item does not exist.
	ErrNotFound = errors.New("media item not found")
	// ErrDuplicateMessage indicates an item with the same message_id was
	// already ingested. Redelivery is not an error; callers skip.
	ErrDuplicateMessage = errors.New("duplicate message id")
	// ErrProviderUnavailable indicates the storage provider is not configured.
	ErrProviderUnavailable = errors.New("storage provider unavailable")
)
