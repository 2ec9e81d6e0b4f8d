package websocket

import "errors"

var (
	ErrClientDisconnected = errors.New("client disconnected")
	ErrSelfMessage        = errors.New("you cannot send messages to yourself")
	ErrEmptyRecipient     = errors.New("recipient username is required")
	ErrEmptyContent       = errors.New("message content is required")
)

// IsValidationError reports whether err was caused by a bad request rather
// than by the server.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrSelfMessage) ||
		errors.Is(err, ErrEmptyRecipient) ||
		errors.Is(err, ErrEmptyContent)
}
