package session

import "errors"

var (
	// ErrAlreadyStarted is returned when Join is called more than once.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrSessionClosed is returned when the session was torn down while an
	// operation was in flight.
	ErrSessionClosed = errors.New("session closed")
	// ErrJoinFailed wraps the cause of an unrecoverable join handshake.
	ErrJoinFailed = errors.New("join failed")
	// ErrMissingDependency is returned by New when a collaborator is nil.
	ErrMissingDependency = errors.New("missing session dependency")
	// ErrBrokerRejected marks broker responses that retrying cannot fix
	// (authentication, validation, unknown meeting).
	ErrBrokerRejected = errors.New("broker rejected request")
)
