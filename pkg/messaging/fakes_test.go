package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"
)

// fakeAPI — сервер в памяти; истории хранятся по id собеседника.
type fakeAPI struct {
	mu        sync.Mutex
	calls     map[string]int
	contracts []domain.Contract
	histories map[int64][]domain.Message
	failing   map[int64]error
	nextID    int64
	expired   bool

	delay       time.Duration
	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:     map[string]int{},
		histories: map[int64][]domain.Message{},
		failing:   map[int64]error{},
		nextID:    1000,
	}
}

func (f *fakeAPI) count(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.expired {
		return ErrSessionExpired
	}
	return nil
}

func (f *fakeAPI) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeAPI) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = map[string]int{}
}

func (f *fakeAPI) Login(_ context.Context, role domain.Role, email, password string) (*LoginResponse, error) {
	if err := f.count("login"); err != nil {
		return nil, err
	}
	if password != "secret" {
		return nil, &APIError{Status: 401, Message: "invalid credentials"}
	}
	return &LoginResponse{
		Token:     "tok",
		SessionID: "sid",
		ExpiresAt: time.Now().Add(time.Hour),
		User:      User{ID: 1, Role: role, Name: "Me", Email: email},
	}, nil
}

func (f *fakeAPI) Logout(context.Context, string) error {
	return f.count("logout")
}

func (f *fakeAPI) Contracts(context.Context, string, domain.Party) ([]domain.Contract, error) {
	if err := f.count("contracts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Contract(nil), f.contracts...), nil
}

func (f *fakeAPI) History(ctx context.Context, _ string, _, cp domain.Party) ([]domain.Message, error) {
	if err := f.count("history"); err != nil {
		return nil, err
	}
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		old := f.maxInflight.Load()
		if n <= old || f.maxInflight.CompareAndSwap(old, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing[cp.ID]; err != nil {
		return nil, err
	}
	return append([]domain.Message(nil), f.histories[cp.ID]...), nil
}

func (f *fakeAPI) Send(_ context.Context, _ string, me, cp domain.Party, content string) (*domain.Message, error) {
	if err := f.count("send"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m := domain.Message{
		ID:         f.nextID,
		SenderID:   me.ID,
		ReceiverID: cp.ID,
		SenderRole: me.Role,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	f.histories[cp.ID] = append(f.histories[cp.ID], m)
	return &m, nil
}

func (f *fakeAPI) MarkRead(_ context.Context, _ string, me, cp domain.Party) (int64, error) {
	if err := f.count("mark_read"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i, m := range f.histories[cp.ID] {
		if m.ReceivedBy(me) && !m.IsRead {
			f.histories[cp.ID][i].IsRead = true
			n++
		}
	}
	return n, nil
}

type fakeRealtime struct {
	mu       sync.Mutex
	joins    []domain.Pair
	emits    []int64
	handlers map[int]func(domain.Message)
	next     int
	joinErr  error

	// echo — что сервер пришлёт в комнату на emit
	echo func(id int64) (domain.Message, bool)
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{handlers: map[int]func(domain.Message){}}
}

func (r *fakeRealtime) JoinRoom(_ context.Context, clientID, freelancerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins = append(r.joins, domain.Pair{ClientID: clientID, FreelancerID: freelancerID})
	return r.joinErr
}

func (r *fakeRealtime) EmitSend(_ context.Context, _, _ int64, _ string, id int64) error {
	r.mu.Lock()
	r.emits = append(r.emits, id)
	echo := r.echo
	r.mu.Unlock()

	if echo != nil {
		if m, ok := echo(id); ok {
			r.deliver(m)
		}
	}
	return nil
}

func (r *fakeRealtime) OnReceive(h func(domain.Message)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	r.handlers[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers, id)
	}
}

func (r *fakeRealtime) deliver(m domain.Message) {
	r.mu.Lock()
	hs := make([]func(domain.Message), 0, len(r.handlers))
	for _, h := range r.handlers {
		hs = append(hs, h)
	}
	r.mu.Unlock()
	for _, h := range hs {
		h(m)
	}
}

var (
	me      = domain.Party{Role: domain.RoleClient, ID: 1}
	partyA  = domain.Party{Role: domain.RoleFreelancer, ID: 2}
	partyB  = domain.Party{Role: domain.RoleFreelancer, ID: 3}
	baseDay = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
)

func at(hh, mm int) time.Time {
	return baseDay.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

func contract(id int64, cp domain.Party, name string) domain.Contract {
	return domain.Contract{
		ID:           id,
		ClientID:     me.ID,
		FreelancerID: cp.ID,
		Freelancer:   domain.Profile{ID: cp.ID, Name: name},
	}
}

func fromParty(id int64, p domain.Party, createdAt time.Time, read bool) domain.Message {
	return domain.Message{ID: id, SenderID: p.ID, ReceiverID: me.ID, SenderRole: p.Role, IsRead: read, CreatedAt: createdAt, Content: "from counterpart"}
}

func fromMe(id int64, to domain.Party, createdAt time.Time, read bool) domain.Message {
	return domain.Message{ID: id, SenderID: me.ID, ReceiverID: to.ID, SenderRole: me.Role, IsRead: read, CreatedAt: createdAt, Content: "from me"}
}

func newTestSession(api API, opts ...SessionOption) *Session {
	return NewSession(api, &LoginResponse{
		Token:     "tok",
		SessionID: "sid",
		ExpiresAt: time.Now().Add(time.Hour),
		User:      User{ID: me.ID, Role: me.Role, Name: "Me"},
	}, opts...)
}
