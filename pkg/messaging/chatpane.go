package messaging

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/cwrk-planet/messenger/internal/domain"
)

// Realtime — то, что ChatPane требует от realtime-канала (*Channel).
type Realtime interface {
	JoinRoom(ctx context.Context, clientID, freelancerID int64) error
	EmitSend(ctx context.Context, clientID, freelancerID int64, content string, messageID int64) error
	OnReceive(h func(domain.Message)) (unsubscribe func())
}

// ChatPane — открытая переписка с выбранным собеседником.
type ChatPane struct {
	session *Session
	list    *ConversationList // nil — без обновления бейджей
	rt      Realtime          // nil — без realtime

	mu          sync.Mutex
	active      *domain.Counterpart
	gen         uint64
	messages    *MessageSet
	unsubscribe func()
}

func NewChatPane(s *Session, list *ConversationList, rt Realtime) *ChatPane {
	p := &ChatPane{
		session:  s,
		list:     list,
		rt:       rt,
		messages: NewMessageSet(),
	}
	if rt != nil {
		p.unsubscribe = rt.OnReceive(p.handleIncoming)
	}
	return p
}

// SelectCounterpart делает собеседника активным: комната, история, прочитано.
func (p *ChatPane) SelectCounterpart(ctx context.Context, cp domain.Counterpart) error {
	me := p.session.Party()
	pair, err := domain.PairOf(me, cp.Party())
	if err != nil || cp.ID <= 0 {
		return domain.ErrNotParticipant
	}

	p.mu.Lock()
	c := cp
	p.active = &c
	p.gen++
	p.messages = NewMessageSet()
	p.mu.Unlock()

	if p.rt != nil {
		if err := p.rt.JoinRoom(ctx, pair.ClientID, pair.FreelancerID); err != nil {
			slog.WarnContext(ctx, "messaging: join room failed", slog.String("room", pair.RoomKey()), slog.Any("err", err))
		}
	}

	if _, err := p.FetchHistory(ctx, cp.ID); err != nil {
		return err
	}
	_, err = p.MarkRead(ctx, cp.ID)
	return err
}

// FetchHistory перезагружает историю; результат применяется, только если
// собеседник всё ещё активен.
func (p *ChatPane) FetchHistory(ctx context.Context, counterpartID int64) ([]domain.Message, error) {
	cp := domain.Party{Role: p.session.Party().Role.Counterpart(), ID: counterpartID}

	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()

	msgs, err := p.session.History(ctx, cp)
	if err != nil {
		slog.WarnContext(ctx, "messaging: fetch history failed", slog.Int64("counterpart_id", counterpartID), slog.Any("err", err))
		return nil, err
	}
	domain.SortMessages(msgs)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen && p.active != nil && p.active.ID == counterpartID {
		// realtime-сообщения, пришедшие во время загрузки, не теряются
		live := p.messages.Messages()
		p.messages.Replace(msgs)
		for _, m := range live {
			p.messages.Add(m)
		}
	}
	return msgs, nil
}

// SendMessage: REST (источник истины), затем локальное эхо, затем realtime best-effort.
func (p *ChatPane) SendMessage(ctx context.Context, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if active == nil {
		return nil, ErrNoCounterpart
	}

	msg, err := p.session.Send(ctx, active.Party(), text)
	if err != nil {
		slog.WarnContext(ctx, "messaging: send failed", slog.Int64("counterpart_id", active.ID), slog.Any("err", err))
		return nil, err
	}

	p.mu.Lock()
	if p.active != nil && p.active.ID == active.ID {
		p.messages.Add(*msg)
	}
	p.mu.Unlock()

	if p.rt != nil {
		pair, _ := domain.PairOf(p.session.Party(), active.Party())
		if err := p.rt.EmitSend(ctx, pair.ClientID, pair.FreelancerID, msg.Content, msg.ID); err != nil {
			slog.DebugContext(ctx, "messaging: realtime emit skipped", slog.Int64("msg_id", msg.ID), slog.Any("err", err))
		}
	}
	return msg, nil
}

// MarkRead отмечает входящие от собеседника; после ответа сервера бейдж = 0.
func (p *ChatPane) MarkRead(ctx context.Context, counterpartID int64) (int64, error) {
	cp := domain.Party{Role: p.session.Party().Role.Counterpart(), ID: counterpartID}
	n, err := p.session.MarkRead(ctx, cp)
	if err != nil {
		slog.WarnContext(ctx, "messaging: mark read failed", slog.Int64("counterpart_id", counterpartID), slog.Any("err", err))
		return 0, err
	}
	if p.list != nil {
		p.list.ResetUnread(counterpartID)
	}
	return n, nil
}

func (p *ChatPane) handleIncoming(m domain.Message) {
	me := p.session.Party()

	p.mu.Lock()
	if p.active != nil {
		pair, _ := domain.PairOf(me, p.active.Party())
		if mp, ok := m.Pair(); ok && mp == pair {
			p.messages.Add(m)
		}
	}
	p.mu.Unlock()

	if p.list != nil {
		p.list.ObserveIncoming(m)
	}
}

func (p *ChatPane) Active() (domain.Counterpart, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return domain.Counterpart{}, false
	}
	return *p.active, true
}

func (p *ChatPane) Messages() []domain.Message {
	p.mu.Lock()
	set := p.messages
	p.mu.Unlock()
	return set.Messages()
}

// Close отписывается от realtime-канала.
func (p *ChatPane) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}
