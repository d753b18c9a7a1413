package domain

import "time"

// Account — учётка клиента или фрилансера, достаточная для логина.
type Account struct {
	Party
	Name         string
	Email        string
	Image        string
	PasswordHash string
}

func (a Account) Profile() Profile {
	return Profile{ID: a.ID, Name: a.Name, Image: a.Image}
}

// Session — серверная запись входа; токен несёт её id в claim sid.
type Session struct {
	ID         string
	Party      Party
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastSeenAt time.Time
	RevokedAt  *time.Time
	UserAgent  string
	IP         string
}

func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// Principal — аутентифицированная сторона запроса.
type Principal struct {
	Party     Party
	SessionID string
}
