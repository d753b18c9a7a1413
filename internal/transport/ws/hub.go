package ws

import (
	"log/slog"
	"sync"

	"github.com/cwrk-planet/messenger/internal/domain"
)

const defaultRecentPerRoom = 256

type Conn interface {
	Send(msg Message) error
	Close() error
	Party() domain.Party
}

type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[Conn]struct{} // room key -> set of connections
	recent map[string]*recentIDs        // room key -> последние разосланные message id

	recentSize int
}

func NewHub(recentPerRoom int) *Hub {
	if recentPerRoom <= 0 {
		recentPerRoom = defaultRecentPerRoom
	}
	return &Hub{
		rooms:      make(map[string]map[Conn]struct{}),
		recent:     make(map[string]*recentIDs),
		recentSize: recentPerRoom,
	}
}

func (h *Hub) Add(room string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[room]
	if !ok {
		rs = make(map[Conn]struct{})
		h.rooms[room] = rs
		h.recent[room] = newRecentIDs(h.recentSize)
	}
	rs[c] = struct{}{}
}

func (h *Hub) Remove(room string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[room]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, room)
			delete(h.recent, room)
		}
	}
}

// Members — число соединений в комнате.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) Broadcast(room string, msg Message) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(msg); err != nil { // best-effort
			slog.Debug("ws.hub.broadcast: send failed", slog.String("room", room), slog.Any("err", err))
		}
	}
}

// PublishMessage рассылает receive_message в комнату пары.
// Повторная публикация того же id в комнату игнорируется.
func (h *Hub) PublishMessage(pair domain.Pair, msg domain.Message) {
	h.Publish(pair, msg)
}

// Publish — PublishMessage, сообщающий, ушло ли сообщение в комнату.
func (h *Hub) Publish(pair domain.Pair, msg domain.Message) bool {
	room := pair.RoomKey()

	h.mu.Lock()
	seen, ok := h.recent[room]
	if !ok {
		h.mu.Unlock()
		return false
	}
	if !seen.add(msg.ID) {
		h.mu.Unlock()
		slog.Debug("ws.hub.publish: duplicate dropped", slog.String("room", room), slog.Int64("msg_id", msg.ID))
		return false
	}
	h.mu.Unlock()

	h.Broadcast(room, Message{Type: TypeReceiveMessage, Payload: msg})
	return true
}

// recentIDs — кольцевой буфер последних id с множеством для поиска.
type recentIDs struct {
	ring []int64
	pos  int
	set  map[int64]struct{}
}

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{
		ring: make([]int64, size),
		set:  make(map[int64]struct{}, size),
	}
}

// add возвращает false, если id уже был.
func (r *recentIDs) add(id int64) bool {
	if _, ok := r.set[id]; ok {
		return false
	}
	if old := r.ring[r.pos]; old != 0 {
		delete(r.set, old)
	}
	r.ring[r.pos] = id
	r.pos = (r.pos + 1) % len(r.ring)
	r.set[id] = struct{}{}
	return true
}
