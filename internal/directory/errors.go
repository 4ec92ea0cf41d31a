package directory

import "errors"

var (
	// ErrMembershipNotFound means the backend answered but has no active
	// membership for the document.
	ErrMembershipNotFound = errors.New("directory: no active membership")
	// ErrUnavailable covers network failures, timeouts and 5xx answers.
	// Callers should keep their state and let the user retry.
	ErrUnavailable = errors.New("directory: backend unavailable")
	// ErrUnexpectedResponse means the backend answered with a status or body
	// we cannot interpret.
	ErrUnexpectedResponse = errors.New("directory: unexpected response")
)
