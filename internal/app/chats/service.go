package chats

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/PabloGalante/farum-chats/internal/domain"
	"github.com/PabloGalante/farum-chats/internal/observability"
)

// DefaultRecentLimit is used by callers that do not ask for a specific limit.
const DefaultRecentLimit = 5

// Service is the conversation store façade. Every method validates its input
// before touching storage and is scoped to the caller's verified user id.
type Service struct {
	store    domain.MessageStore
	personas domain.PersonaDirectory
	clock    *Clock
	newID    func() string
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the timestamp source.
func WithClock(c *Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator replaces the message id source.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(store domain.MessageStore, personas domain.PersonaDirectory, opts ...Option) *Service {
	s := &Service{
		store:    store,
		personas: personas,
		clock:    NewClock(nil),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type PostMessageInput struct {
	User        domain.UserID
	Persona     domain.PersonaID
	SessionID   domain.SessionID
	UserMessage string
	AIResponse  string
	FileURL     string
	FileType    string
}

// PostMessage appends one exchange to the log. Id and timestamp are assigned here.
func (s *Service) PostMessage(ctx context.Context, in PostMessageInput) (*domain.Message, error) {
	if err := required(
		field{"user", string(in.User)},
		field{"persona", string(in.Persona)},
		field{"session_id", string(in.SessionID)},
		field{"user_message", in.UserMessage},
		field{"ai_response", in.AIResponse},
	); err != nil {
		return nil, err
	}

	log := observability.LoggerFromContext(ctx).With(
		"user_id", in.User,
		"persona", in.Persona,
		"session_id", in.SessionID,
	)

	msg := &domain.Message{
		ID:          domain.MessageID(s.newID()),
		User:        in.User,
		Persona:     in.Persona,
		SessionID:   in.SessionID,
		UserMessage: in.UserMessage,
		AIResponse:  in.AIResponse,
		Timestamp:   s.clock.Now(),
		FileURL:     in.FileURL,
		FileType:    in.FileType,
	}

	if err := s.store.AppendMessage(ctx, msg); err != nil {
		log.Error("failed to append message", "error", err)
		return nil, err
	}

	log.Info("message appended", "message_id", msg.ID)
	return msg, nil
}

// GetMessages returns the caller's messages matching filter, oldest first.
func (s *Service) GetMessages(ctx context.Context, user domain.UserID, filter domain.MessageFilter) ([]*domain.Message, error) {
	if err := required(field{"user", string(user)}); err != nil {
		return nil, err
	}

	msgs, err := s.store.QueryMessages(ctx, user, filter)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to query messages",
			"user_id", user,
			"error", err)
		return nil, err
	}
	return msgs, nil
}

// ArchiveSession hides every message of the caller's session.
// It returns how many messages changed; zero is not an error.
func (s *Service) ArchiveSession(ctx context.Context, user domain.UserID, sessionID domain.SessionID) (int, error) {
	return s.setArchived(ctx, user, sessionID, true)
}

// UnarchiveSession reverses ArchiveSession.
func (s *Service) UnarchiveSession(ctx context.Context, user domain.UserID, sessionID domain.SessionID) (int, error) {
	return s.setArchived(ctx, user, sessionID, false)
}

func (s *Service) setArchived(ctx context.Context, user domain.UserID, sessionID domain.SessionID, archived bool) (int, error) {
	if err := required(
		field{"user", string(user)},
		field{"session_id", string(sessionID)},
	); err != nil {
		return 0, err
	}

	log := observability.LoggerFromContext(ctx).With(
		"user_id", user,
		"session_id", sessionID,
		"archived", archived,
	)

	n, err := s.store.SetArchived(ctx, user, sessionID, archived)
	if err != nil {
		log.Error("failed to update archive state", "error", err)
		return 0, err
	}

	log.Info("archive state updated", "modified_count", n)
	return n, nil
}

// GetSessionsForPersona returns every session the caller has with persona,
// archived or not, each dated by its first message.
func (s *Service) GetSessionsForPersona(ctx context.Context, user domain.UserID, persona domain.PersonaID) ([]domain.SessionThread, error) {
	if err := required(
		field{"user", string(user)},
		field{"persona", string(persona)},
	); err != nil {
		return nil, err
	}

	msgs, err := s.store.QueryMessages(ctx, user, domain.MessageFilter{Persona: &persona})
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to load persona history",
			"user_id", user,
			"persona", persona,
			"error", err)
		return nil, err
	}

	return BuildThreads(msgs), nil
}

type RecentSessionsInput struct {
	User    domain.UserID
	Persona *domain.PersonaID
	Limit   int
}

// GetRecentSessions returns the caller's most recently updated, non-archived
// sessions, newest first, with persona display names.
func (s *Service) GetRecentSessions(ctx context.Context, in RecentSessionsInput) ([]domain.SessionSummary, error) {
	if err := required(field{"user", string(in.User)}); err != nil {
		return nil, err
	}
	if in.Limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1", domain.ErrValidation)
	}

	log := observability.LoggerFromContext(ctx).With(
		"user_id", in.User,
		"limit", in.Limit,
	)

	filter := domain.MessageFilter{
		Persona:  in.Persona,
		Archived: domain.Ptr(false),
	}

	msgs, err := s.store.QueryMessages(ctx, in.User, filter)
	if err != nil {
		log.Error("failed to load messages for recent sessions", "error", err)
		return nil, err
	}

	summaries := RankRecent(msgs, in.Limit)
	resolvePersonaNames(ctx, s.personas, log, summaries)
	sortByRecency(summaries)

	log.Info("recent sessions ranked", "count", len(summaries))
	return summaries, nil
}

type EditMessageInput struct {
	User          domain.UserID
	MessageID     domain.MessageID
	NewText       string
	NewAIResponse *string
}

// EditMessage replaces the text of a message the caller owns. Id, timestamp,
// session and owner never change.
func (s *Service) EditMessage(ctx context.Context, in EditMessageInput) (*domain.Message, error) {
	if err := required(
		field{"user", string(in.User)},
		field{"messageId", string(in.MessageID)},
		field{"newText", in.NewText},
	); err != nil {
		return nil, err
	}

	log := observability.LoggerFromContext(ctx).With(
		"user_id", in.User,
		"message_id", in.MessageID,
	)

	msg, err := s.store.UpdateMessageText(ctx, in.MessageID, in.User, in.NewText, in.NewAIResponse)
	if err != nil {
		log.Error("failed to edit message", "error", err)
		return nil, err
	}

	log.Info("message edited", "session_id", msg.SessionID)
	return msg, nil
}

type field struct {
	name  string
	value string
}

func required(fields ...field) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}
