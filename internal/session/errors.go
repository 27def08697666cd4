package session

import "errors"

var (
	// ErrInvalidContent is returned when message content is outside the
	// configured length bounds or the role is unknown.
	ErrInvalidContent = errors.New("invalid content")

	// ErrInvalidThread is returned when a message is appended to a thread
	// that does not exist.
	ErrInvalidThread = errors.New("invalid thread")

	// ErrUnknownThread is returned by registry operations on an absent
	// thread id.
	ErrUnknownThread = errors.New("unknown thread")

	// ErrPersistence wraps failures writing session state to the durable
	// store. The in-memory change that triggered the write is kept.
	ErrPersistence = errors.New("persistence failure")

	// ErrCorruptState is returned when persisted state cannot be decoded
	// into a valid session.
	ErrCorruptState = errors.New("corrupt session state")
)
