package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"

	"github.com/gorilla/websocket"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
	TouchSession(ctx context.Context, sessionID string)
}

type MessageSvc interface {
	Get(ctx context.Context, me domain.Party, id int64) (*domain.Message, error)
}

type Options struct {
	PingEvery    time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	// пустой список — любой Origin
	AllowedOrigins []string
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	auth     Authenticator
	messages MessageSvc

	pingEvery    time.Duration
	writeTimeout time.Duration
	readLimit    int64
}

func NewServer(hub *Hub, auth Authenticator, messages MessageSvc, opts Options) *Server {
	if opts.PingEvery <= 0 {
		opts.PingEvery = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}

	return &Server{
		hub:      hub,
		auth:     auth,
		messages: messages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(opts.AllowedOrigins),
		},
		pingEvery:    opts.PingEvery,
		writeTimeout: opts.WriteTimeout,
		readLimit:    opts.ReadLimit,
	}
}

// WS endpoint: GET /ws, токен в Authorization: Bearer или ?access_token=
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing access token", http.StatusUnauthorized)
		return
	}
	principal, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		slog.WarnContext(r.Context(), "ws.handshake: authenticate failed", slog.Any("err", err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	c := newWsConn(conn, principal, s.writeTimeout)
	slog.DebugContext(ctx, "ws connected", slog.String("party", principal.Party.String()))

	go s.writeLoop(ctx, c)
	s.readLoop(ctx, c)

	if c.room != "" {
		s.hub.Remove(c.room, c)
	}
	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "party", principal.Party.String(), "err", err)
	}
	slog.DebugContext(ctx, "ws disconnected", slog.String("party", principal.Party.String()))
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	defer func() { _ = c.Close() }()

	s.auth.TouchSession(ctx, c.principal.SessionID)

	c.conn.SetReadLimit(s.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		s.auth.TouchSession(ctx, c.principal.SessionID)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws read failed", "party", c.principal.Party.String(), "err", err)
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(c, "", domain.Pair{}, "malformed envelope")
			continue
		}

		switch msg.Type {
		case TypeJoinRoom:
			s.handleJoin(c, msg.Payload)
		case TypeLeaveRoom:
			s.handleLeave(c)
		case TypeSendMessage:
			s.handleSend(ctx, c, msg.Payload)
		default:
			s.sendError(c, msg.Type, domain.Pair{}, "unknown event type: "+msg.Type)
		}
	}
}

// handleJoin: одна комната на соединение, старая покидается до входа в новую.
func (s *Server) handleJoin(c *wsConn, raw json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(c, TypeJoinRoom, domain.Pair{}, "malformed join_room payload")
		return
	}
	pair := domain.Pair{ClientID: p.ClientID, FreelancerID: p.FreelancerID}
	if !pair.Valid() || !pair.Has(c.principal.Party) {
		s.sendError(c, TypeJoinRoom, pair, "not a participant of this room")
		return
	}

	room := pair.RoomKey()
	if c.room == room {
		_ = c.Send(Message{Type: TypeRoomJoined, Payload: roomPayload(pair)})
		return
	}
	if c.room != "" {
		s.handleLeave(c)
	}

	s.hub.Add(room, c)
	c.room, c.pair = room, pair
	_ = c.Send(Message{Type: TypeRoomJoined, Payload: roomPayload(pair)})
}

func (s *Server) handleLeave(c *wsConn) {
	if c.room == "" {
		return
	}
	s.hub.Remove(c.room, c)
	left := c.pair
	c.room, c.pair = "", domain.Pair{}
	_ = c.Send(Message{Type: TypeRoomLeft, Payload: roomPayload(left)})
}

// handleSend пересылает в комнату уже сохранённое сообщение отправителя.
func (s *Server) handleSend(ctx context.Context, c *wsConn, raw json.RawMessage) {
	var p SendPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(c, TypeSendMessage, domain.Pair{}, "malformed send_message payload")
		return
	}
	pair := domain.Pair{ClientID: p.ClientID, FreelancerID: p.FreelancerID}
	if c.room == "" || pair != c.pair {
		s.sendError(c, TypeSendMessage, pair, "join the room before sending")
		return
	}
	if p.MessageID <= 0 {
		s.sendError(c, TypeSendMessage, pair, "message_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	msg, err := s.messages.Get(ctx, c.principal.Party, p.MessageID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) || errors.Is(err, domain.ErrForbidden) {
			s.sendError(c, TypeSendMessage, pair, "message not found")
			return
		}
		slog.WarnContext(ctx, "ws.send: messages.Get failed", slog.Int64("msg_id", p.MessageID), slog.Any("err", err))
		s.sendError(c, TypeSendMessage, pair, "internal error")
		return
	}
	if msgPair, ok := msg.Pair(); !msg.SentBy(c.principal.Party) || !ok || msgPair != pair {
		s.sendError(c, TypeSendMessage, pair, "message does not belong to this room")
		return
	}

	s.hub.PublishMessage(pair, *msg)
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// sendError отвечает на событие request; пустая pair — комната неизвестна.
func (s *Server) sendError(c *wsConn, request string, pair domain.Pair, text string) {
	_ = c.Send(Message{Type: TypeError, Payload: ErrorPayload{
		Message:      text,
		Request:      request,
		ClientID:     pair.ClientID,
		FreelancerID: pair.FreelancerID,
	}})
}

// --- helpers ---

func roomPayload(p domain.Pair) RoomPayload {
	return RoomPayload{ClientID: p.ClientID, FreelancerID: p.FreelancerID, Room: p.RoomKey()}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

type wsConn struct {
	conn      *websocket.Conn
	principal domain.Principal
	timeout   time.Duration

	// room/pair меняет только readLoop
	room string
	pair domain.Pair

	sendMu chan struct{}
	closed chan struct{}
}

func newWsConn(c *websocket.Conn, p domain.Principal, timeout time.Duration) *wsConn {
	return &wsConn{
		conn:      c,
		principal: p,
		timeout:   timeout,
		sendMu:    make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))

	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()

	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}

	return c.conn.Close()
}

func (c *wsConn) Party() domain.Party { return c.principal.Party }
