package mafia

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room code already in use")
	ErrVersionConflict = errors.New("room was modified concurrently")
	ErrGameStarted     = errors.New("game has already started")
	ErrNotHost         = errors.New("only the host can do that")
	ErrUnknownRole     = errors.New("unknown role")
)

// ValidationError reports a client-side precondition failure. It is raised
// before any store round-trip, so the caller can correct the input and retry.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
