package domain

import "context"

// MessageStore is the durable Message Log.
//
// Query results are ordered by Timestamp ascending, with ties in insertion
// order. Implementations must be safe for concurrent use.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	QueryMessages(ctx context.Context, user UserID, filter MessageFilter) ([]*Message, error)

	// UpdateMessageText replaces the text of a message owned by user.
	// Ownership is checked in the same write, returning ErrNotFound on mismatch.
	// A nil aiResponse leaves the AI response untouched.
	UpdateMessageText(ctx context.Context, id MessageID, user UserID, userMessage string, aiResponse *string) (*Message, error)

	// SetArchived flips the archived flag of every message in (user, session)
	// and returns how many messages actually changed.
	SetArchived(ctx context.Context, user UserID, sessionID SessionID, archived bool) (int, error)

	Close() error
}

// PersonaDirectory resolves persona ids to display data.
// A persona that does not exist yields ErrNotFound.
type PersonaDirectory interface {
	Resolve(ctx context.Context, id PersonaID) (*Persona, error)
}

// IdentityProvider verifies a caller credential and returns the user it belongs to.
type IdentityProvider interface {
	Verify(ctx context.Context, credential string) (UserID, error)
}
