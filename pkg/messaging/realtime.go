package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/internal/transport/ws"

	"github.com/gorilla/websocket"
)

type ChannelState int

const (
	StateDisconnected ChannelState = iota
	StateConnected
	StateInRoom
)

func (s ChannelState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in_room"
	default:
		return "disconnected"
	}
}

// TokenSource отдаёт актуальный access token (*Session).
type TokenSource interface {
	Token() string
}

type ChannelOptions struct {
	Dialer       *websocket.Dialer
	AckTimeout   time.Duration // ожидание room_joined / room_left
	WriteTimeout time.Duration

	// Переподключение с экспоненциальной задержкой и повторным входом в комнату.
	Reconnect   bool
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Channel — клиент realtime-канала: одна комната на соединение.
type Channel struct {
	url    string
	tokens TokenSource
	opts   ChannelOptions

	mu       sync.Mutex
	conn     *websocket.Conn
	state    ChannelState
	room     domain.Pair
	wantRoom domain.Pair // последняя запрошенная комната, для переподключения
	closed   bool
	done     chan struct{}

	writeMu sync.Mutex
	roomMu  sync.Mutex // JoinRoom/LeaveRoom по одному
	acks    chan ackEvent

	hmu         sync.RWMutex
	handlers    map[int]func(domain.Message)
	nextHandler int
}

// ackEvent — ответ сервера на join/leave; для error req — отклонённое событие.
type ackEvent struct {
	typ  string
	req  string
	room domain.Pair
	msg  string
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewChannel(url string, tokens TokenSource, opts ChannelOptions) *Channel {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Channel{
		url:      url,
		tokens:   tokens,
		opts:     opts,
		done:     make(chan struct{}),
		acks:     make(chan ackEvent, 16),
		handlers: make(map[int]func(domain.Message)),
	}
}

func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room — текущая комната, если канал в ней.
func (c *Channel) Room() (domain.Pair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.state == StateInRoom
}

// Connect: Disconnected -> Connected. Повторный вызов при живом соединении ничего не делает.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed || c.conn != nil {
		c.mu.Unlock()
		_ = conn.Close()
		if c.closed {
			return ErrChannelClosed
		}
		return nil
	}
	c.conn = conn
	c.state = StateConnected
	c.room = domain.Pair{}
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	token := c.tokens.Token()
	if token == "" {
		return nil, ErrSessionExpired
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.url, h)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.Join(ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("realtime dial: %w", err)
	}
	return conn, nil
}

// JoinRoom явно покидает текущую комнату и входит в новую, дожидаясь room_joined.
func (c *Channel) JoinRoom(ctx context.Context, clientID, freelancerID int64) error {
	pair := domain.Pair{ClientID: clientID, FreelancerID: freelancerID}
	if !pair.Valid() {
		return fmt.Errorf("realtime: invalid room %s", pair.RoomKey())
	}

	c.roomMu.Lock()
	defer c.roomMu.Unlock()

	c.mu.Lock()
	conn, state, current := c.conn, c.state, c.room
	c.wantRoom = pair
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if state == StateInRoom && current == pair {
		return nil
	}
	c.drainAcks()

	if state == StateInRoom {
		if err := c.leave(ctx, conn, current); err != nil {
			return err
		}
	}

	if err := c.write(ctx, conn, ws.TypeJoinRoom, ws.RoomPayload{ClientID: clientID, FreelancerID: freelancerID}); err != nil {
		c.resetRoom(conn)
		return err
	}
	if err := c.awaitAck(ctx, ws.TypeRoomJoined, ws.TypeJoinRoom, pair); err != nil {
		c.resetRoom(conn)
		return err
	}

	c.mu.Lock()
	if c.conn == conn {
		c.state = StateInRoom
		c.room = pair
	}
	c.mu.Unlock()
	return nil
}

// LeaveRoom: InRoom -> Connected.
func (c *Channel) LeaveRoom(ctx context.Context) error {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()

	c.mu.Lock()
	conn, state, current := c.conn, c.state, c.room
	c.wantRoom = domain.Pair{}
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if state != StateInRoom {
		return nil
	}
	c.drainAcks()
	return c.leave(ctx, conn, current)
}

func (c *Channel) leave(ctx context.Context, conn *websocket.Conn, room domain.Pair) error {
	err := c.write(ctx, conn, ws.TypeLeaveRoom, ws.RoomPayload{ClientID: room.ClientID, FreelancerID: room.FreelancerID})
	if err == nil {
		err = c.awaitAck(ctx, ws.TypeRoomLeft, ws.TypeLeaveRoom, room)
	}
	// и без подтверждения считаем, что вне комнаты: следующий JoinRoom отправит join_room
	c.resetRoom(conn)
	return err
}

// resetRoom: InRoom -> Connected для текущего соединения.
func (c *Channel) resetRoom(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.state = StateConnected
		c.room = domain.Pair{}
	}
	c.mu.Unlock()
}

// EmitSend — fire-and-forget: сервер пересылает сохранённое сообщение messageID в комнату.
func (c *Channel) EmitSend(ctx context.Context, clientID, freelancerID int64, content string, messageID int64) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(ctx, conn, ws.TypeSendMessage, ws.SendPayload{
		ClientID:     clientID,
		FreelancerID: freelancerID,
		Content:      content,
		MessageID:    messageID,
	})
}

// OnReceive подписывает обработчик receive_message; вызывается вне блокировок канала.
func (c *Channel) OnReceive(h func(domain.Message)) (unsubscribe func()) {
	c.hmu.Lock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = h
	c.hmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.hmu.Lock()
			delete(c.handlers, id)
			c.hmu.Unlock()
		})
	}
}

// Close: -> Disconnected, без переподключения.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.room = domain.Pair{}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.WriteTimeout))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Channel) write(ctx context.Context, conn *websocket.Conn, typ string, payload any) error {
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(ws.Message{Type: typ, Payload: payload}); err != nil {
		return fmt.Errorf("realtime write %s: %w", typ, err)
	}
	return nil
}

// awaitAck ждёт typ для room; error учитывается, только если отклонён именно req для этой комнаты.
func (c *Channel) awaitAck(ctx context.Context, typ, req string, room domain.Pair) error {
	timer := time.NewTimer(c.opts.AckTimeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-c.acks:
			if ev.typ == ws.TypeError {
				if ev.req == req && (ev.room == room || ev.room == (domain.Pair{})) {
					return fmt.Errorf("realtime %s rejected: %s", req, ev.msg)
				}
				continue
			}
			if ev.typ == typ && ev.room == room {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("realtime: no %s within %s", typ, c.opts.AckTimeout)
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrChannelClosed
		}
	}
}

func (c *Channel) drainAcks() {
	for {
		select {
		case <-c.acks:
		default:
			return
		}
	}
}

func (c *Channel) pushAck(ev ackEvent) {
	select {
	case c.acks <- ev:
	default:
		slog.Debug("messaging: realtime ack dropped", slog.String("type", ev.typ))
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.onDisconnect(conn, err)
			return
		}

		switch env.Type {
		case ws.TypeReceiveMessage:
			var m domain.Message
			if err := json.Unmarshal(env.Payload, &m); err != nil {
				slog.Warn("messaging: bad receive_message payload", slog.Any("err", err))
				continue
			}
			c.dispatch(m)
		case ws.TypeRoomJoined, ws.TypeRoomLeft:
			var p ws.RoomPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			c.pushAck(ackEvent{typ: env.Type, room: domain.Pair{ClientID: p.ClientID, FreelancerID: p.FreelancerID}})
		case ws.TypeError:
			var p ws.ErrorPayload
			_ = json.Unmarshal(env.Payload, &p)
			slog.Warn("messaging: realtime server error", slog.String("request", p.Request), slog.String("message", p.Message))
			// ошибки send_message не относятся к join/leave
			if p.Request == ws.TypeJoinRoom || p.Request == ws.TypeLeaveRoom {
				c.pushAck(ackEvent{
					typ:  ws.TypeError,
					req:  p.Request,
					room: domain.Pair{ClientID: p.ClientID, FreelancerID: p.FreelancerID},
					msg:  p.Message,
				})
			}
		}
	}
}

func (c *Channel) dispatch(m domain.Message) {
	c.hmu.RLock()
	hs := make([]func(domain.Message), 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	c.hmu.RUnlock()

	for _, h := range hs {
		h(m)
	}
}

func (c *Channel) onDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.room = domain.Pair{}
	room, closed := c.wantRoom, c.closed
	c.mu.Unlock()

	_ = conn.Close()
	if closed {
		return
	}
	slog.Warn("messaging: realtime disconnected", slog.Any("err", err))
	if c.opts.Reconnect {
		go c.reconnect(room)
	}
}

func (c *Channel) reconnect(room domain.Pair) {
	backoff := c.opts.BaseBackoff
	for {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.AckTimeout)
		err := c.Connect(ctx)
		if err == nil && room.Valid() {
			err = c.JoinRoom(ctx, room.ClientID, room.FreelancerID)
		}
		cancel()

		switch {
		case err == nil:
			slog.Info("messaging: realtime reconnected", slog.String("room", room.RoomKey()))
			return
		case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrChannelClosed):
			return
		}
		slog.Debug("messaging: realtime reconnect failed", slog.Duration("backoff", backoff), slog.Any("err", err))

		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}
}
