package ws

import "encoding/json"

// Типы событий realtime-канала
const (
	// client -> server
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeSendMessage = "send_message"

	// server -> client
	TypeRoomJoined     = "room_joined"
	TypeRoomLeft       = "room_left"
	TypeReceiveMessage = "receive_message" // payload — domain.Message
	TypeError          = "error"
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// inbound — конверт с ещё не разобранным payload.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type RoomPayload struct {
	ClientID     int64  `json:"client_id"`
	FreelancerID int64  `json:"freelancer_id"`
	Room         string `json:"room,omitempty"`
}

// SendPayload: message_id — id уже сохранённого через REST сообщения.
type SendPayload struct {
	ClientID     int64  `json:"client_id"`
	FreelancerID int64  `json:"freelancer_id"`
	Content      string `json:"content"`
	MessageID    int64  `json:"message_id"`
}

// ErrorPayload: request и комната — событие клиента, которое отклонено.
type ErrorPayload struct {
	Message      string `json:"message"`
	Request      string `json:"request,omitempty"`
	ClientID     int64  `json:"client_id,omitempty"`
	FreelancerID int64  `json:"freelancer_id,omitempty"`
}
