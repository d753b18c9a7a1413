package http

import (
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserItem struct {
	ID    int64       `json:"id"`
	Role  domain.Role `json:"role"`
	Name  string      `json:"name"`
	Email string      `json:"email,omitempty"`
	Image string      `json:"image,omitempty"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserItem  `json:"user"`
}

type SessionResponse struct {
	Valid     bool     `json:"valid"`
	SessionID string   `json:"session_id"`
	User      UserItem `json:"user"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type MarkReadResponse struct {
	Success bool  `json:"success"`
	Updated int64 `json:"updated"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

func userItem(a *domain.Account) UserItem {
	return UserItem{
		ID:    a.ID,
		Role:  a.Role,
		Name:  a.Name,
		Email: a.Email,
		Image: a.Image,
	}
}
