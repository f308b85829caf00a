package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/farum-chats/internal/domain"
)

// Store is a Firestore-backed domain.MessageStore and domain.PersonaDirectory.
// Messages live in a flat "chats" collection keyed by message id; personas
// are looked up by their "id" field in "personas".
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (FARUM_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, storageErr("creating firestore client", err)
	}

	return &Store{client: client}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) chatsCol() *firestore.CollectionRef {
	return s.client.Collection("chats")
}

func (s *Store) chatDoc(id domain.MessageID) *firestore.DocumentRef {
	return s.chatsCol().Doc(string(id))
}

func (s *Store) personasCol() *firestore.CollectionRef {
	return s.client.Collection("personas")
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type chatDoc struct {
	User        string    `firestore:"user"`
	Persona     string    `firestore:"persona"`
	SessionID   string    `firestore:"session_id"`
	UserMessage string    `firestore:"user_message"`
	AIResponse  string    `firestore:"ai_response"`
	Timestamp   time.Time `firestore:"timestamp"`
	Archived    bool      `firestore:"archived"`
	FileURL     string    `firestore:"fileUrl,omitempty"`
	FileType    string    `firestore:"fileType,omitempty"`
}

type personaDoc struct {
	ID   string `firestore:"id"`
	Name string `firestore:"name"`
}

func toChatDoc(m *domain.Message) chatDoc {
	return chatDoc{
		User:        string(m.User),
		Persona:     string(m.Persona),
		SessionID:   string(m.SessionID),
		UserMessage: m.UserMessage,
		AIResponse:  m.AIResponse,
		Timestamp:   m.Timestamp,
		Archived:    m.Archived,
		FileURL:     m.FileURL,
		FileType:    m.FileType,
	}
}

func fromSnapshot(snap *firestore.DocumentSnapshot) (*domain.Message, error) {
	var doc chatDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode chatDoc: %w", err)
	}

	return &domain.Message{
		ID:          domain.MessageID(snap.Ref.ID),
		User:        domain.UserID(doc.User),
		Persona:     domain.PersonaID(doc.Persona),
		SessionID:   domain.SessionID(doc.SessionID),
		UserMessage: doc.UserMessage,
		AIResponse:  doc.AIResponse,
		Timestamp:   doc.Timestamp.UTC(),
		Archived:    doc.Archived,
		FileURL:     doc.FileURL,
		FileType:    doc.FileType,
	}, nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	_, err := s.chatDoc(msg.ID).Create(ctx, toChatDoc(msg))
	if err != nil {
		return storageErr("firestore AppendMessage", err)
	}
	return nil
}

func (s *Store) QueryMessages(ctx context.Context, user domain.UserID, filter domain.MessageFilter) ([]*domain.Message, error) {
	q := s.chatsCol().Where("user", "==", string(user))
	if filter.Persona != nil {
		q = q.Where("persona", "==", string(*filter.Persona))
	}
	if filter.SessionID != nil {
		q = q.Where("session_id", "==", string(*filter.SessionID))
	}
	if filter.Archived != nil {
		q = q.Where("archived", "==", *filter.Archived)
	}
	q = q.OrderBy("timestamp", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)

	iter := q.Documents(ctx)
	defer iter.Stop()

	out := make([]*domain.Message, 0)
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, storageErr("firestore QueryMessages", err)
		}

		m, err := fromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) UpdateMessageText(
	ctx context.Context,
	id domain.MessageID,
	user domain.UserID,
	userMessage string,
	aiResponse *string,
) (*domain.Message, error) {
	ref := s.chatDoc(id)

	var updated *domain.Message
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return domain.ErrNotFound
			}
			return err
		}

		m, err := fromSnapshot(snap)
		if err != nil {
			return err
		}
		// Ownership is read inside the transaction, so a concurrent change aborts it.
		if m.User != user {
			return domain.ErrNotFound
		}

		updates := []firestore.Update{{Path: "user_message", Value: userMessage}}
		m.UserMessage = userMessage
		if aiResponse != nil {
			updates = append(updates, firestore.Update{Path: "ai_response", Value: *aiResponse})
			m.AIResponse = *aiResponse
		}

		updated = m
		return tx.Update(ref, updates)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr("firestore UpdateMessageText", err)
	}
	return updated, nil
}

// SetArchived updates every matching document through a BulkWriter. The
// writes are not atomic as a group; re-running with the same target state
// picks up whatever a previous attempt missed.
func (s *Store) SetArchived(ctx context.Context, user domain.UserID, sessionID domain.SessionID, archived bool) (int, error) {
	q := s.chatsCol().
		Where("user", "==", string(user)).
		Where("session_id", "==", string(sessionID)).
		Where("archived", "==", !archived)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var refs []*firestore.DocumentRef
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return 0, storageErr("firestore SetArchived query", err)
		}
		refs = append(refs, snap.Ref)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bw.Update(ref, []firestore.Update{{Path: "archived", Value: archived}})
		if err != nil {
			bw.End()
			return 0, storageErr("firestore SetArchived enqueue", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	n := 0
	var firstErr error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		n++
	}
	if firstErr != nil {
		return n, storageErr("firestore SetArchived", firstErr)
	}
	return n, nil
}

// ─────────────────────────────────────────
// PersonaDirectory implementation
// ─────────────────────────────────────────

func (s *Store) Resolve(ctx context.Context, id domain.PersonaID) (*domain.Persona, error) {
	iter := s.personasCol().Where("id", "==", string(id)).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err != nil {
		if errors.Is(err, iterator.Done) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr("firestore Resolve", err)
	}

	var doc personaDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode personaDoc: %w", err)
	}
	return &domain.Persona{ID: id, Name: doc.Name}, nil
}

// storageErr wraps err with op, tagging transport failures as
// domain.ErrStorageUnavailable.
func storageErr(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}
