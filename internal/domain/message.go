package domain

import (
	"sort"
	"time"
)

type Message struct {
	ID         int64     `json:"id" db:"id"`
	ContractID int64     `json:"contract_id" db:"contract_id"`
	SenderID   int64     `json:"sender_id" db:"sender_id"`
	ReceiverID int64     `json:"receiver_id" db:"receiver_id"`
	SenderRole Role      `json:"sender_role,omitempty" db:"sender_role"`
	Content    string    `json:"content" db:"content"`
	IsRead     bool      `json:"is_read" db:"is_read"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// SentBy сверяет отправителя; без sender_role сравниваем только id.
func (m Message) SentBy(p Party) bool {
	if m.SenderID != p.ID {
		return false
	}
	return m.SenderRole == "" || m.SenderRole == p.Role
}

func (m Message) ReceivedBy(p Party) bool {
	if m.ReceiverID != p.ID {
		return false
	}
	return m.SenderRole == "" || m.SenderRole != p.Role
}

// Pair восстанавливает пару по отправителю; ok=false без sender_role.
func (m Message) Pair() (Pair, bool) {
	switch m.SenderRole {
	case RoleClient:
		return Pair{ClientID: m.SenderID, FreelancerID: m.ReceiverID}, true
	case RoleFreelancer:
		return Pair{ClientID: m.ReceiverID, FreelancerID: m.SenderID}, true
	default:
		return Pair{}, false
	}
}

// Before — порядок истории: created_at, при равенстве id.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
}
