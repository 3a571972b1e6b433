package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrActorRequired indicates a mutation attempted without a verified actor.
	ErrActorRequired = errors.New("actor identity required")
)
