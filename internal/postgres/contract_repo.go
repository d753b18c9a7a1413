package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/messenger/internal/domain"

	"github.com/jackc/pgx/v5"
)

type ContractRepository struct {
	db querier
}

func NewContractRepository(db querier) *ContractRepository {
	return &ContractRepository{db: db}
}

func scanContract(row pgx.Row) (domain.Contract, error) {
	var c domain.Contract
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.TaskID,
		&c.ClientID,
		&c.FreelancerID,
		&c.AgreedAmount,
		&c.Status,
		&c.StartedAt,
		&c.Client.Name,
		&c.Client.Image,
		&c.Freelancer.Name,
		&c.Freelancer.Image,
	)
	c.Client.ID = c.ClientID
	c.Freelancer.ID = c.FreelancerID
	return c, err
}

// ListByParty — контракты стороны в порядке создания.
func (r *ContractRepository) ListByParty(ctx context.Context, party domain.Party) ([]domain.Contract, error) {
	var q string
	switch party.Role {
	case domain.RoleClient:
		q = qContractsByClient
	case domain.RoleFreelancer:
		q = qContractsByFreelancer
	default:
		return nil, fmt.Errorf("list contracts: %w", domain.ErrInvalidRole)
	}

	rows, err := r.db.Query(ctx, q, party.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Contract, 0, 8)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ContractRepository) LatestBetween(ctx context.Context, pair domain.Pair) (*domain.Contract, error) {
	c, err := scanContract(r.db.QueryRow(ctx, qContractLatestBetween, pair.ClientID, pair.FreelancerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContractNotFound
		}
		return nil, err
	}
	return &c, nil
}
