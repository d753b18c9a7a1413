package messaging

import (
	"sort"
	"sync"

	"github.com/cwrk-planet/messenger/internal/domain"
)

// MessageSet — сообщения одной переписки, уникальные по id, в порядке (created_at, id).
type MessageSet struct {
	mu   sync.RWMutex
	byID map[int64]struct{}
	list []domain.Message
}

func NewMessageSet() *MessageSet {
	return &MessageSet{byID: make(map[int64]struct{})}
}

// Add вставляет сообщение; false — такой id уже есть.
func (s *MessageSet) Add(m domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[m.ID]; ok {
		return false
	}
	s.byID[m.ID] = struct{}{}

	i := sort.Search(len(s.list), func(i int) bool { return m.Before(s.list[i]) })
	s.list = append(s.list, domain.Message{})
	copy(s.list[i+1:], s.list[i:])
	s.list[i] = m
	return true
}

// Replace заменяет содержимое; дубликаты id во входе схлопываются.
func (s *MessageSet) Replace(msgs []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[int64]struct{}, len(msgs))
	s.list = make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := s.byID[m.ID]; ok {
			continue
		}
		s.byID[m.ID] = struct{}{}
		s.list = append(s.list, m)
	}
	domain.SortMessages(s.list)
}

func (s *MessageSet) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.list...)
}

func (s *MessageSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}
