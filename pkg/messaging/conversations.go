package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const DefaultFanOut = 4

// Conversation — строка списка переписок.
// Latest — последнее сообщение, отправленное собеседником; nil, если таких нет
// или историю получить не удалось.
type Conversation struct {
	Counterpart domain.Counterpart
	Latest      *domain.Message
	Unread      int
}

type ConversationList struct {
	session *Session
	limit   int
	timeout time.Duration

	mu    sync.RWMutex
	items []Conversation
	seen  map[int64]struct{} // id входящих, уже учтённых ObserveIncoming
}

type ListOption func(*ConversationList)

// WithFanOut — сколько историй грузится одновременно.
func WithFanOut(n int) ListOption {
	return func(l *ConversationList) { l.limit = n }
}

// WithFetchTimeout — таймаут загрузки одной истории.
func WithFetchTimeout(d time.Duration) ListOption {
	return func(l *ConversationList) { l.timeout = d }
}

func NewConversationList(s *Session, opts ...ListOption) *ConversationList {
	l := &ConversationList{session: s, limit: DefaultFanOut, timeout: DefaultCallTimeout}
	for _, o := range opts {
		o(l)
	}
	if l.limit <= 0 {
		l.limit = DefaultFanOut
	}
	return l
}

// Load строит список: контракты -> собеседники -> истории параллельно.
// Порядок — порядок контрактов. Ошибка истории одного собеседника
// даёт ему Latest=nil, Unread=0.
func (l *ConversationList) Load(ctx context.Context) ([]Conversation, error) {
	ctx, span := tracer.Start(ctx, "messaging.ConversationList.Load")
	defer span.End()

	contracts, err := l.session.Contracts(ctx)
	if err != nil {
		return nil, err
	}
	me := l.session.Party()
	counterparts := domain.CounterpartsOf(me, contracts)
	span.SetAttributes(attribute.Int("counterparts", len(counterparts)))

	out := make([]Conversation, len(counterparts))
	var g errgroup.Group
	g.SetLimit(l.limit)

	for i, cp := range counterparts {
		out[i].Counterpart = cp
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, l.timeout)
			defer cancel()

			msgs, err := l.session.History(fctx, cp.Party())
			if err != nil {
				if errors.Is(err, ErrSessionExpired) {
					return err
				}
				slog.WarnContext(ctx, "messaging: history fetch failed",
					slog.Int64("counterpart_id", cp.ID), slog.Any("err", err))
				return nil
			}
			out[i].Latest, out[i].Unread = summarize(me, cp.Party(), msgs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.items = out
	l.seen = make(map[int64]struct{})
	l.mu.Unlock()

	return l.Items(), nil
}

// summarize: последнее сообщение от собеседника и число непрочитанных входящих.
func summarize(me, counterpart domain.Party, msgs []domain.Message) (*domain.Message, int) {
	var (
		latest *domain.Message
		unread int
	)
	for i := range msgs {
		m := msgs[i]
		if m.ReceivedBy(me) && !m.IsRead {
			unread++
		}
		if m.SentBy(counterpart) && (latest == nil || latest.Before(m)) {
			latest = &m
		}
	}
	return latest, unread
}

func (l *ConversationList) Items() []Conversation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Conversation(nil), l.items...)
}

func (l *ConversationList) Get(counterpartID int64) (Conversation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, c := range l.items {
		if c.Counterpart.ID == counterpartID {
			return c, true
		}
	}
	return Conversation{}, false
}

func (l *ConversationList) ResetUnread(counterpartID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].Counterpart.ID == counterpartID {
			l.items[i].Unread = 0
		}
	}
}

// ObserveIncoming учитывает входящее realtime-сообщение; false — не от собеседника из списка.
func (l *ConversationList) ObserveIncoming(m domain.Message) bool {
	me := l.session.Party()
	if !m.ReceivedBy(me) {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		it := &l.items[i]
		if !m.SentBy(it.Counterpart.Party()) {
			continue
		}
		if _, dup := l.seen[m.ID]; dup || (it.Latest != nil && it.Latest.ID == m.ID) {
			return true
		}
		l.seen[m.ID] = struct{}{}
		if it.Latest == nil || it.Latest.Before(m) {
			msg := m
			it.Latest = &msg
		}
		if !m.IsRead {
			it.Unread++
		}
		return true
	}
	return false
}

// Filter — поиск по имени собеседника без учёта регистра.
func (l *ConversationList) Filter(term string) []Conversation {
	term = strings.ToLower(strings.TrimSpace(term))
	items := l.Items()
	if term == "" {
		return items
	}
	out := items[:0]
	for _, c := range items {
		if strings.Contains(strings.ToLower(c.Counterpart.Name), term) {
			out = append(out, c)
		}
	}
	return out
}
