package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/internal/postgres"

	"go.opentelemetry.io/otel/attribute"
)

const DefaultMaxMessageLength = 4000

type MessageService struct {
	messages  MessageStore
	contracts ContractStore
	publisher Publisher

	maxLen int
}

func NewMessageService(messages MessageStore, contracts ContractStore, publisher Publisher, maxLen int) *MessageService {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	return &MessageService{
		messages:  messages,
		contracts: contracts,
		publisher: publisher,
		maxLen:    maxLen,
	}
}

// History — переписка me с counterpart по возрастанию (created_at, id).
func (s *MessageService) History(ctx context.Context, me, counterpart domain.Party, page postgres.Page) ([]domain.Message, string, error) {
	ctx, span := tracer.Start(ctx, "MessageService.History")
	defer span.End()

	pair, err := domain.PairOf(me, counterpart)
	if err != nil {
		return nil, "", err
	}
	span.SetAttributes(attribute.String("room", pair.RoomKey()))

	msgs, next, err := s.messages.ListBetween(ctx, pair, page)
	if err != nil {
		return nil, "", fmt.Errorf("messages.ListBetween: %w", err)
	}
	domain.SortMessages(msgs)
	return msgs, next, nil
}

// Send сохраняет сообщение и публикует его в комнату пары.
func (s *MessageService) Send(ctx context.Context, me, counterpart domain.Party, content string) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "MessageService.Send")
	defer span.End()

	text := strings.TrimSpace(content)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > s.maxLen {
		return nil, domain.ErrMessageTooLong
	}

	pair, err := domain.PairOf(me, counterpart)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("room", pair.RoomKey()))

	contract, err := s.contracts.LatestBetween(ctx, pair)
	if err != nil {
		if errors.Is(err, domain.ErrContractNotFound) {
			return nil, fmt.Errorf("%w: no contract between %s and %s", domain.ErrNotParticipant, me, counterpart)
		}
		return nil, fmt.Errorf("contracts.LatestBetween: %w", err)
	}

	msg, err := s.messages.Create(ctx, *contract, me, text)
	if err != nil {
		return nil, fmt.Errorf("messages.Create: %w", err)
	}

	if s.publisher != nil {
		s.publisher.PublishMessage(pair, *msg)
	}
	slog.DebugContext(ctx, "message stored", slog.Int64("msg_id", msg.ID), slog.String("room", pair.RoomKey()))

	return msg, nil
}

// MarkRead отмечает входящие от counterpart; возвращает число изменённых строк.
func (s *MessageService) MarkRead(ctx context.Context, me, counterpart domain.Party) (int64, error) {
	ctx, span := tracer.Start(ctx, "MessageService.MarkRead")
	defer span.End()

	pair, err := domain.PairOf(me, counterpart)
	if err != nil {
		return 0, err
	}
	n, err := s.messages.MarkRead(ctx, pair, me)
	if err != nil {
		return 0, fmt.Errorf("messages.MarkRead: %w", err)
	}
	span.SetAttributes(attribute.Int64("updated", n))
	return n, nil
}

// Get — сообщение по id, если me его участник.
func (s *MessageService) Get(ctx context.Context, me domain.Party, id int64) (*domain.Message, error) {
	msg, err := s.messages.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !msg.SentBy(me) && !msg.ReceivedBy(me) {
		return nil, domain.ErrForbidden
	}
	return msg, nil
}

type UnreadItem struct {
	CounterpartID int64 `json:"counterpart_id"`
	Unread        int64 `json:"unread"`
}

func (s *MessageService) UnreadSummary(ctx context.Context, me domain.Party) ([]UnreadItem, error) {
	ctx, span := tracer.Start(ctx, "MessageService.UnreadSummary")
	defer span.End()

	counts, err := s.messages.UnreadCounts(ctx, me)
	if err != nil {
		return nil, fmt.Errorf("messages.UnreadCounts: %w", err)
	}
	out := make([]UnreadItem, 0, len(counts))
	for id, n := range counts {
		out = append(out, UnreadItem{CounterpartID: id, Unread: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CounterpartID < out[j].CounterpartID })
	return out, nil
}
