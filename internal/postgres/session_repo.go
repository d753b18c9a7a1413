package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"

	"github.com/jackc/pgx/v5"
)

type SessionRepository struct {
	db querier
}

func NewSessionRepository(db querier) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.Exec(ctx, qSessionInsert,
		s.ID, string(s.Party.Role), s.Party.ID, s.CreatedAt, s.ExpiresAt, s.UserAgent, s.IP)
	return mapPgError(err)
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	var (
		s    domain.Session
		role string
	)
	err := r.db.QueryRow(ctx, qSessionGet, id).Scan(
		&s.ID,
		&role,
		&s.Party.ID,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.LastSeenAt,
		&s.RevokedAt,
		&s.UserAgent,
		&s.IP,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	s.Party.Role = domain.Role(role)
	return &s, nil
}

func (r *SessionRepository) Touch(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.Exec(ctx, qSessionTouch, id, now)
	return err
}

// Revoke идемпотентен: уже отозванную сессию не трогаем.
func (r *SessionRepository) Revoke(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.Exec(ctx, qSessionRevoke, id, now)
	return err
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, qSessionDeleteExpired, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
