// Package transcript holds the per-session conversational memory: an ordered,
// role-tagged message log seeded with one system message at creation.
package transcript

import (
	"context"
	"errors"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Common errors for transcript store operations.
var (
	ErrNotFound         = errors.New("session not found")
	ErrOutOfOrder       = errors.New("message role out of order")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
)

// Message is a single conversation turn.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// Transcript is the ordered message history backing one session.
// Invariant: Messages[0] is the only system message, inserted at creation.
type Transcript struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the interface for transcript storage backends.
//
// GetOrCreate never fails on an unknown or empty session id: it mints a fresh
// random id, seeds a new transcript with the system prompt, and returns both.
// A stale or garbled id therefore means "start fresh", never an error.
type Store interface {
	// GetOrCreate returns the transcript for id, or a freshly created one
	// under a newly minted id when id is empty or unknown. The returned id
	// is the one the transcript is actually stored under.
	GetOrCreate(ctx context.Context, id string) (*Transcript, string, error)

	// Get returns the transcript for id, or an error wrapping ErrNotFound.
	Get(ctx context.Context, id string) (*Transcript, error)

	// AppendUser appends a user message. The previous message must be the
	// system message or an assistant message.
	AppendUser(ctx context.Context, id, content string) error

	// AppendAssistant appends an assistant message. The previous message
	// must be a user message; anything else is a caller contract violation
	// and is rejected with ErrOutOfOrder.
	AppendAssistant(ctx context.Context, id, content string) error

	// Close releases any backend resources.
	Close() error
}

// validateAppend enforces strict system, user, assistant, user, ... ordering.
func validateAppend(t *Transcript, role string) error {
	if len(t.Messages) == 0 {
		return ErrOutOfOrder
	}
	last := t.Messages[len(t.Messages)-1].Role
	switch role {
	case RoleUser:
		if last != RoleSystem && last != RoleAssistant {
			return ErrOutOfOrder
		}
	case RoleAssistant:
		if last != RoleUser {
			return ErrOutOfOrder
		}
	default:
		return ErrOutOfOrder
	}
	return nil
}

// newTranscript seeds a fresh transcript with the system prompt as its first
// and only system message.
func newTranscript(id, systemPrompt string) *Transcript {
	now := time.Now()
	return &Transcript{
		SessionID: id,
		Messages: []Message{
			{Role: RoleSystem, Content: systemPrompt, Time: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// clone returns a deep copy so callers can read messages without holding
// store locks.
func (t *Transcript) clone() *Transcript {
	c := *t
	c.Messages = append([]Message(nil), t.Messages...)
	return &c
}
