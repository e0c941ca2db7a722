package destinations

import "errors"

var (
	// ErrNotFound reports an unknown destination id.
	ErrNotFound = errors.New("destination not found")
	// ErrInvalidType reports a destination_type outside the known set.
	ErrInvalidType = errors.New("invalid destination type")
	// ErrInvalidConfig reports a config missing a key its type requires.
	ErrInvalidConfig = errors.New("invalid destination config")
)
