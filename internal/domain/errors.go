package domain

import "errors"

var (
	ErrInvalidRole        = errors.New("invalid role")
	ErrMessageNotFound    = errors.New("message not found")
	ErrContractNotFound   = errors.New("contract not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNotParticipant     = errors.New("party is not a participant of the conversation")
	ErrForbidden          = errors.New("forbidden")
	ErrEmptyMessage       = errors.New("empty message")
	ErrMessageTooLong     = errors.New("message too long")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionRevoked     = errors.New("session revoked or expired")
)
