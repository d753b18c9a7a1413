package messaging

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrNoCounterpart  = errors.New("no counterpart selected")
	ErrSessionExpired = errors.New("session expired")
	ErrNotConnected   = errors.New("realtime channel not connected")
	ErrChannelClosed  = errors.New("realtime channel closed")
)

// APIError — ответ сервера со статусом >= 400.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api: %d %s (req_id=%s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}
