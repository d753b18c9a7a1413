package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/internal/security"

	"github.com/google/uuid"
)

type LoginResult struct {
	Account   *domain.Account
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// Метаданные для записи сессии
type LoginMeta struct {
	UserAgent string
	IP        string
}

type AuthService struct {
	accounts AccountStore
	sessions SessionStore
	jwt      *security.JWTSigner
	now      func() time.Time
}

func NewAuthService(accounts AccountStore, sessions SessionStore, jwt *security.JWTSigner, now func() time.Time) *AuthService {
	if now == nil {
		now = time.Now
	}

	return &AuthService{
		accounts: accounts,
		sessions: sessions,
		jwt:      jwt,
		now:      now,
	}
}

// Login аутентифицирует по email+пароль, заводит сессию и выпускает access JWT.
func (s *AuthService) Login(ctx context.Context, role domain.Role, email, password string, meta LoginMeta) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	acc, err := s.accounts.GetByEmail(ctx, role, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			slog.WarnContext(ctx, "auth.login.getByEmail: unknown account", slog.String("role", string(role)))
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("accounts.GetByEmail: %w", err)
	}

	if err := security.ComparePassword(acc.PasswordHash, password); err != nil {
		slog.WarnContext(ctx, "auth.login.comparePassword failed", slog.String("party", acc.Party.String()))
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now()
	sess := &domain.Session{
		ID:         uuid.NewString(),
		Party:      acc.Party,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.jwt.TTL()),
		LastSeenAt: now,
		UserAgent:  meta.UserAgent,
		IP:         meta.IP,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("sessions.Create: %w", err)
	}

	token, exp, err := s.jwt.SignAccessToken(acc.Party, sess.ID, now)
	if err != nil {
		return nil, fmt.Errorf("jwt.SignAccessToken: %w", err)
	}

	return &LoginResult{
		Account:   acc,
		Token:     token,
		SessionID: sess.ID,
		ExpiresAt: exp,
	}, nil
}

// Logout отзывает сессию; повторный вызов ничего не меняет.
func (s *AuthService) Logout(ctx context.Context, p domain.Principal) error {
	if p.SessionID == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, p.SessionID, s.now()); err != nil {
		return fmt.Errorf("sessions.Revoke: %w", err)
	}
	return nil
}

// Authenticate проверяет JWT и что его сессия не отозвана и не истекла.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	claims, err := s.jwt.ParseAndValidate(token)
	if err != nil {
		return domain.Principal{}, err
	}
	party, err := security.PartyFromClaims(claims)
	if err != nil {
		return domain.Principal{}, err
	}
	if claims.SessionID == "" {
		return domain.Principal{}, domain.ErrSessionRevoked
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.Principal{}, domain.ErrSessionRevoked
		}
		return domain.Principal{}, fmt.Errorf("sessions.Get: %w", err)
	}
	if sess.Party != party || !sess.Active(s.now()) {
		return domain.Principal{}, domain.ErrSessionRevoked
	}

	return domain.Principal{Party: party, SessionID: sess.ID}, nil
}

// TouchSession — best-effort обновление last_seen.
func (s *AuthService) TouchSession(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if err := s.sessions.Touch(ctx, sessionID, s.now()); err != nil {
		slog.DebugContext(ctx, "auth.touchSession failed", slog.Any("err", err))
	}
}

func (s *AuthService) Me(ctx context.Context, party domain.Party) (*domain.Account, error) {
	return s.accounts.GetByID(ctx, party)
}

func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now())
}
