package domain

import "errors"

var (
	// ErrValidation marks a missing or malformed required field. Not retryable.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a message or session that is absent or not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable marks a durable-store timeout or connection failure.
	// Callers may retry with backoff; the store never retries on its own.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrPersonaResolution marks a failed persona name lookup. It never
	// leaves the chats service.
	ErrPersonaResolution = errors.New("persona resolution failed")

	// ErrUnauthenticated marks a missing or invalid caller credential.
	ErrUnauthenticated = errors.New("unauthenticated")
)
