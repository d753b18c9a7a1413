package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/messenger/internal/domain"

	"github.com/jackc/pgx/v5"
)

type AccountRepository struct {
	db querier
}

func NewAccountRepository(db querier) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByEmail(ctx context.Context, role domain.Role, email string) (*domain.Account, error) {
	q := qClientByEmail
	if role == domain.RoleFreelancer {
		q = qFreelancerByEmail
	}
	return r.getOne(ctx, role, q, email)
}

func (r *AccountRepository) GetByID(ctx context.Context, party domain.Party) (*domain.Account, error) {
	q := qClientByID
	if party.Role == domain.RoleFreelancer {
		q = qFreelancerByID
	}
	return r.getOne(ctx, party.Role, q, party.ID)
}

func (r *AccountRepository) getOne(ctx context.Context, role domain.Role, sql string, arg any) (*domain.Account, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	a := domain.Account{Party: domain.Party{Role: role}}
	err := r.db.QueryRow(ctx, sql, arg).Scan(&a.ID, &a.Name, &a.Email, &a.Image, &a.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, mapPgError(err)
	}
	return &a, nil
}
