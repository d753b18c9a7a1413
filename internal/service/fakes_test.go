package service

import (
	"context"
	"sync"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/internal/postgres"
)

type memMessages struct {
	mu     sync.Mutex
	nextID int64
	rows   []domain.Message
	pairs  map[int64]domain.Pair
	now    func() time.Time
}

func newMemMessages() *memMessages {
	return &memMessages{pairs: map[int64]domain.Pair{}, now: time.Now}
}

func (m *memMessages) Create(_ context.Context, c domain.Contract, sender domain.Party, content string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	pair := c.Pair()
	msg := domain.Message{
		ID:         m.nextID,
		ContractID: c.ID,
		SenderID:   sender.ID,
		ReceiverID: pair.Other(sender).ID,
		SenderRole: sender.Role,
		Content:    content,
		CreatedAt:  m.now(),
	}
	m.rows = append(m.rows, msg)
	m.pairs[msg.ID] = pair
	return &msg, nil
}

func (m *memMessages) Get(_ context.Context, id int64) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func (m *memMessages) ListBetween(_ context.Context, pair domain.Pair, _ postgres.Page) ([]domain.Message, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, r := range m.rows {
		if m.pairs[r.ID] == pair {
			out = append(out, r)
		}
	}
	return out, "", nil
}

func (m *memMessages) MarkRead(_ context.Context, pair domain.Pair, reader domain.Party) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i, r := range m.rows {
		if m.pairs[r.ID] == pair && r.SenderRole != reader.Role && !r.IsRead {
			m.rows[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *memMessages) UnreadCounts(_ context.Context, party domain.Party) (map[int64]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[int64]int64{}
	for _, r := range m.rows {
		if r.ReceivedBy(party) && !r.IsRead {
			out[r.SenderID]++
		}
	}
	return out, nil
}

type memContracts struct {
	list []domain.Contract
	err  error
}

func (m *memContracts) ListByParty(_ context.Context, p domain.Party) ([]domain.Contract, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Contract
	for _, c := range m.list {
		if c.Pair().Has(p) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memContracts) LatestBetween(_ context.Context, pair domain.Pair) (*domain.Contract, error) {
	for i := len(m.list) - 1; i >= 0; i-- {
		if m.list[i].Pair() == pair {
			c := m.list[i]
			return &c, nil
		}
	}
	return nil, domain.ErrContractNotFound
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []domain.Message
}

func (p *recordingPublisher) PublishMessage(_ domain.Pair, msg domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
}

type memAccounts struct {
	byEmail map[string]*domain.Account
}

func (m *memAccounts) GetByEmail(_ context.Context, role domain.Role, email string) (*domain.Account, error) {
	a, ok := m.byEmail[string(role)+"/"+email]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

func (m *memAccounts) GetByID(_ context.Context, p domain.Party) (*domain.Account, error) {
	for _, a := range m.byEmail {
		if a.Party == p {
			return a, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

type memSessions struct {
	mu   sync.Mutex
	byID map[string]*domain.Session
}

func newMemSessions() *memSessions { return &memSessions{byID: map[string]*domain.Session{}} }

func (m *memSessions) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.byID[s.ID] = &cp
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) Touch(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		s.LastSeenAt = now
	}
	return nil
}

func (m *memSessions) Revoke(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok && s.RevokedAt == nil {
		s.RevokedAt = &now
	}
	return nil
}

func (m *memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.byID {
		if s.ExpiresAt.Before(now) {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}
