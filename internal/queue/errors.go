package queue

import "errors"

var (
	// ErrNotFound reports an unknown queue entry id.
	ErrNotFound = errors.New("queue entry not found")
	// ErrInvalidTransition reports a status move outside the lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAlreadyQueued reports a media/destination pair that is already
	// in flight.
	ErrAlreadyQueued = errors.New("media already queued for destination")
)
