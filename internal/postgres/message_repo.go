package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/messenger/internal/domain"

	"github.com/jackc/pgx/v5"
)

type MessageRepository struct {
	db querier
}

func NewMessageRepository(db querier) *MessageRepository {
	return &MessageRepository{db: db}
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		m    domain.Message
		role string
	)
	err := row.Scan(&m.ID, &m.ContractID, &m.SenderID, &m.ReceiverID, &role, &m.Content, &m.IsRead, &m.CreatedAt)
	m.SenderRole = domain.Role(role)
	return m, err
}

// Create сохраняет сообщение от sender внутри контракта.
func (r *MessageRepository) Create(ctx context.Context, contract domain.Contract, sender domain.Party, content string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, qMessageInsert,
		contract.ID, contract.ClientID, contract.FreelancerID, string(sender.Role), content))
	if err != nil {
		return nil, mapPgError(err)
	}
	return &m, nil
}

func (r *MessageRepository) Get(ctx context.Context, id int64) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, qMessageGet, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListBetween возвращает историю пары по возрастанию (created_at, id).
func (r *MessageRepository) ListBetween(ctx context.Context, pair domain.Pair, page Page) ([]domain.Message, string, error) {
	cur, err := DecodeCursor(page.After)
	if err != nil {
		return nil, "", err
	}
	limit := page.clamp()

	var createdAt, id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, qMessageListBetween, pair.ClientID, pair.FreelancerID, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, 32)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if limit > 0 && len(out) == limit {
		last := out[len(out)-1]
		if c, e := EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID}); e == nil {
			next = c
		}
	}
	return out, next, nil
}

// MarkRead отмечает прочитанными входящие для reader; повторный вызов вернёт 0.
func (r *MessageRepository) MarkRead(ctx context.Context, pair domain.Pair, reader domain.Party) (int64, error) {
	tag, err := r.db.Exec(ctx, qMessageMarkRead, pair.ClientID, pair.FreelancerID, string(reader.Role))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UnreadCounts — непрочитанные входящие party по собеседникам.
func (r *MessageRepository) UnreadCounts(ctx context.Context, party domain.Party) (map[int64]int64, error) {
	var q string
	switch party.Role {
	case domain.RoleClient:
		q = qMessageUnreadByClient
	case domain.RoleFreelancer:
		q = qMessageUnreadByFreelancer
	default:
		return nil, fmt.Errorf("unread counts: %w", domain.ErrInvalidRole)
	}

	rows, err := r.db.Query(ctx, q, party.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var counterpartID, n int64
		if err := rows.Scan(&counterpartID, &n); err != nil {
			return nil, err
		}
		out[counterpartID] = n
	}
	return out, rows.Err()
}
