package service

import (
	"context"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/internal/postgres"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/cwrk-planet/messenger/internal/service")

type MessageStore interface {
	Create(ctx context.Context, contract domain.Contract, sender domain.Party, content string) (*domain.Message, error)
	Get(ctx context.Context, id int64) (*domain.Message, error)
	ListBetween(ctx context.Context, pair domain.Pair, page postgres.Page) ([]domain.Message, string, error)
	MarkRead(ctx context.Context, pair domain.Pair, reader domain.Party) (int64, error)
	UnreadCounts(ctx context.Context, party domain.Party) (map[int64]int64, error)
}

type ContractStore interface {
	ListByParty(ctx context.Context, party domain.Party) ([]domain.Contract, error)
	LatestBetween(ctx context.Context, pair domain.Pair) (*domain.Contract, error)
}

type AccountStore interface {
	GetByEmail(ctx context.Context, role domain.Role, email string) (*domain.Account, error)
	GetByID(ctx context.Context, party domain.Party) (*domain.Account, error)
}

type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Touch(ctx context.Context, id string, now time.Time) error
	Revoke(ctx context.Context, id string, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Publisher — realtime-рассылка сохранённых сообщений (ws.Hub).
type Publisher interface {
	PublishMessage(pair domain.Pair, msg domain.Message)
}
