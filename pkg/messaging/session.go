package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"
)

// Session — аутентифицированный пользователь; передаётся в контроллеры явно.
type Session struct {
	api API
	now func() time.Time

	mu        sync.RWMutex
	user      User
	party     domain.Party
	token     string
	id        string
	expiresAt time.Time

	onExpired   func()
	expiredOnce sync.Once
}

type SessionOption func(*Session)

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithOnExpired вызывается один раз, когда сессия перестаёт быть рабочей.
func WithOnExpired(fn func()) SessionOption {
	return func(s *Session) { s.onExpired = fn }
}

func Login(ctx context.Context, api API, role domain.Role, email, password string, opts ...SessionOption) (*Session, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	resp, err := api.Login(ctx, role, email, password)
	if err != nil {
		return nil, err
	}
	return NewSession(api, resp, opts...), nil
}

// NewSession восстанавливает сессию из ответа логина.
func NewSession(api API, resp *LoginResponse, opts ...SessionOption) *Session {
	s := &Session{
		api:       api,
		now:       time.Now,
		user:      resp.User,
		party:     domain.Party{Role: resp.User.Role, ID: resp.User.ID},
		token:     resp.Token,
		id:        resp.SessionID,
		expiresAt: resp.ExpiresAt,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) Party() domain.Party { return s.party }
func (s *Session) User() User          { return s.user }
func (s *Session) ID() string          { return s.id }

// Token — текущий токен; пустой после Logout или истечения.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

func (s *Session) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return true
	}
	return !s.expiresAt.IsZero() && !now.Before(s.expiresAt)
}

func (s *Session) Logout(ctx context.Context) error {
	token := s.Token()
	if token == "" {
		return nil
	}
	err := s.api.Logout(ctx, token)
	s.clear()
	if err != nil && !errors.Is(err, ErrSessionExpired) {
		return err
	}
	return nil
}

func (s *Session) Contracts(ctx context.Context) ([]domain.Contract, error) {
	token, err := s.authorize()
	if err != nil {
		return nil, err
	}
	out, err := s.api.Contracts(ctx, token, s.party)
	return out, s.check(ctx, err)
}

func (s *Session) History(ctx context.Context, counterpart domain.Party) ([]domain.Message, error) {
	token, err := s.authorize()
	if err != nil {
		return nil, err
	}
	out, err := s.api.History(ctx, token, s.party, counterpart)
	return out, s.check(ctx, err)
}

func (s *Session) Send(ctx context.Context, counterpart domain.Party, content string) (*domain.Message, error) {
	token, err := s.authorize()
	if err != nil {
		return nil, err
	}
	out, err := s.api.Send(ctx, token, s.party, counterpart, content)
	return out, s.check(ctx, err)
}

func (s *Session) MarkRead(ctx context.Context, counterpart domain.Party) (int64, error) {
	token, err := s.authorize()
	if err != nil {
		return 0, err
	}
	n, err := s.api.MarkRead(ctx, token, s.party, counterpart)
	return n, s.check(ctx, err)
}

func (s *Session) authorize() (string, error) {
	if s.Expired(s.now()) {
		s.expire()
		return "", ErrSessionExpired
	}
	return s.Token(), nil
}

func (s *Session) check(ctx context.Context, err error) error {
	if errors.Is(err, ErrSessionExpired) {
		slog.WarnContext(ctx, "messaging: session rejected by server", slog.String("party", s.party.String()))
		s.expire()
	}
	return err
}

func (s *Session) clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func (s *Session) expire() {
	s.clear()
	s.expiredOnce.Do(func() {
		if s.onExpired != nil {
			s.onExpired()
		}
	})
}
