package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/PabloGalante/farum-chats/internal/domain"
)

// MessageStore is an in-memory domain.MessageStore.
// It is NOT persistent and is only suitable for development / local mode.
type MessageStore struct {
	mu       sync.RWMutex
	messages []*domain.Message // insertion order
	byID     map[domain.MessageID]*domain.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		byID: make(map[domain.MessageID]*domain.Message),
	}
}

func (s *MessageStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[msg.ID]; exists {
		return fmt.Errorf("message %s already exists", msg.ID)
	}

	stored := msg.Clone()
	s.messages = append(s.messages, stored)
	s.byID[stored.ID] = stored
	return nil
}

func (s *MessageStore) QueryMessages(ctx context.Context, user domain.UserID, filter domain.MessageFilter) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Message, 0)
	for _, m := range s.messages {
		if m.User == user && filter.Matches(m) {
			out = append(out, m.Clone())
		}
	}

	// Stable keeps insertion order on equal timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *MessageStore) UpdateMessageText(
	ctx context.Context,
	id domain.MessageID,
	user domain.UserID,
	userMessage string,
	aiResponse *string,
) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok || m.User != user {
		return nil, domain.ErrNotFound
	}

	m.UserMessage = userMessage
	if aiResponse != nil {
		m.AIResponse = *aiResponse
	}
	return m.Clone(), nil
}

func (s *MessageStore) SetArchived(ctx context.Context, user domain.UserID, sessionID domain.SessionID, archived bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.messages {
		if m.User == user && m.SessionID == sessionID && m.Archived != archived {
			m.Archived = archived
			n++
		}
	}
	return n, nil
}

func (s *MessageStore) Close() error {
	return nil
}
