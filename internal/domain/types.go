package domain

import "time"

type MessageID string
type UserID string
type PersonaID string
type SessionID string

type Timestamp = time.Time

// UnknownPersonaName is shown when a persona id cannot be resolved.
const UnknownPersonaName = "Unknown Persona"

// EmptyPreview is the preview text of a session whose last message carries no text.
const EmptyPreview = "No message"
