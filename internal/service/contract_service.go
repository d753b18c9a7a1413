package service

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/messenger/internal/domain"
)

type ContractService struct {
	contracts ContractStore
}

func NewContractService(contracts ContractStore) *ContractService {
	return &ContractService{contracts: contracts}
}

// Contracts возвращает контракты стороны в порядке создания.
func (s *ContractService) Contracts(ctx context.Context, party domain.Party) ([]domain.Contract, error) {
	ctx, span := tracer.Start(ctx, "ContractService.Contracts")
	defer span.End()

	list, err := s.contracts.ListByParty(ctx, party)
	if err != nil {
		return nil, fmt.Errorf("contracts.ListByParty: %w", err)
	}
	return list, nil
}
