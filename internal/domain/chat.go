package domain

// Message is one recorded exchange (user text + AI response) inside a session.
type Message struct {
	ID        MessageID
	User      UserID
	Persona   PersonaID
	SessionID SessionID

	UserMessage string
	AIResponse  string

	Timestamp Timestamp
	Archived  bool

	// Optional attachment, opaque to the store
	FileURL  string
	FileType string
}

// Clone returns a copy so callers cannot mutate stored state.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// Preview is the text shown for a session whose latest message is m.
func (m *Message) Preview() string {
	if m.UserMessage != "" {
		return m.UserMessage
	}
	if m.AIResponse != "" {
		return m.AIResponse
	}
	return EmptyPreview
}

// MessageFilter narrows a query for a single user. A nil field means "no filter".
type MessageFilter struct {
	Persona   *PersonaID
	SessionID *SessionID
	Archived  *bool
}

// Matches reports whether m passes every set field of f.
func (f MessageFilter) Matches(m *Message) bool {
	if f.Persona != nil && m.Persona != *f.Persona {
		return false
	}
	if f.SessionID != nil && m.SessionID != *f.SessionID {
		return false
	}
	if f.Archived != nil && m.Archived != *f.Archived {
		return false
	}
	return true
}

// SessionThread is the history-browsing view of one session.
// Date is the timestamp of the first message.
type SessionThread struct {
	SessionID SessionID
	Messages  []*Message
	Date      Timestamp
}

// SessionSummary is one entry of the recency feed.
type SessionSummary struct {
	SessionID      SessionID
	PersonaID      PersonaID
	PersonaName    string
	LastMessage    string
	LastAIResponse string
	UpdatedAt      Timestamp
}

// Persona is the read-only view of a persona needed by the store.
type Persona struct {
	ID   PersonaID
	Name string
}

// Ptr returns a pointer to v. Handy for building filters.
func Ptr[T any](v T) *T {
	return &v
}
