// Package store provides storage implementations for moex's people, sessions,
// knowledge, humor, tasks, memory facts, chat history and audit trail.
package store

import (
	"context"
	"errors"
	"time"
)

// Person is an identity record. People are never deleted, only disabled.
type Person struct {
	ID         string    // Unique identifier (UUID)
	Name       string    // Display name, exact-match claimable
	Email      string    // Optional, exact-match claimable
	Handle     string    // Optional, exact-match claimable
	Tags       string    // Free-text tags (team, department)
	Persona    string    // Optional per-person behavioral override text
	SecretSalt []byte    // Random salt, immutable after creation
	SecretHash []byte    // Salted one-way hash of the secret word, immutable after creation
	Enabled    bool      // Disabled people cannot claim, verify or resolve
	CreatedAt  time.Time // Timestamp of creation
}

// Session is an ephemeral trust grant minted by a successful secret verification.
type Session struct {
	Token        string    // Opaque high-entropy token
	PersonID     string    // Owning person
	TrustedUntil time.Time // Session is invalid once now >= TrustedUntil
	CreatedAt    time.Time
}

// KnowledgeChunk is a titled text fragment visible to retrieval.
type KnowledgeChunk struct {
	ID        string
	Title     string
	Chunk     string
	Tag       string // "policy" for uploads, "canon" for canonical notes
	SourceURI string
	CreatedAt time.Time
}

// HumorLine is a tone-tagged quip used by the tone envelope.
type HumorLine struct {
	ID         string
	Line       string
	Level      string // "playful" or "sharp"
	Tag        string
	UseCount   int
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// MemoryFact is a key/value pair asserted by someone. Facts accumulate;
// a repeated key does not replace the earlier value.
type MemoryFact struct {
	ID        string
	Key       string
	Value     string
	Source    string
	CreatedAt time.Time
}

// AuditEntry is an immutable record of one interaction step.
type AuditEntry struct {
	ID        string                 // ULID, lexically sortable by time
	Timestamp time.Time              // When the entry was written
	Caller    string                 // Caller display name ("Guest" for anonymous)
	Kind      string                 // chat, teach, upload, auth, task
	Tone      string                 // Tone computed for the interaction, if any
	Payload   map[string]interface{} // Serialized as JSON
}

// ChatMessage is one line of conversation history.
type ChatMessage struct {
	ID        string
	PersonID  string // Empty for guests
	Role      string // "user" or "assistant"
	Text      string
	CreatedAt time.Time
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PersonStore persists identity records.
type PersonStore interface {
	// AddPerson inserts a new person. ID and CreatedAt are generated when empty.
	AddPerson(ctx context.Context, p *Person) error

	// GetPerson returns a person by ID regardless of enabled state.
	// Returns (nil, nil) if not found.
	GetPerson(ctx context.Context, id string) (*Person, error)

	// FindEnabledPersonBy returns the first enabled person whose field exactly
	// equals value. Field is one of "email", "handle", "name".
	// Returns (nil, nil) if nobody matches.
	FindEnabledPersonBy(ctx context.Context, field, value string) (*Person, error)

	// DisablePerson flips the enabled flag off.
	DisablePerson(ctx context.Context, id string) error
}

// SessionStore persists trust sessions.
type SessionStore interface {
	AddSession(ctx context.Context, s *Session) error

	// GetSession returns the session for a token. Returns (nil, nil) if unknown.
	GetSession(ctx context.Context, token string) (*Session, error)
}

// KnowledgeStore persists knowledge chunks.
type KnowledgeStore interface {
	AddKnowledge(ctx context.Context, k *KnowledgeChunk) error

	// RecentKnowledge returns at most limit chunks, newest first.
	RecentKnowledge(ctx context.Context, limit int) ([]*KnowledgeChunk, error)

	CountKnowledge(ctx context.Context) (int64, error)
}

// HumorStore persists humor lines and their rotation counters.
type HumorStore interface {
	AddHumor(ctx context.Context, h *HumorLine) error

	// PickHumor selects the least used line for a level (and tag when non-empty),
	// breaking ties toward never-used and least recently used lines, then at random.
	// The picked line's use counter is incremented. Returns (nil, nil) if none match.
	PickHumor(ctx context.Context, level, tag string, at time.Time) (*HumorLine, error)
}

// FactStore persists memory facts.
type FactStore interface {
	AddFact(ctx context.Context, f *MemoryFact) error

	// FactsByKey returns every fact recorded under key, oldest first.
	FactsByKey(ctx context.Context, key string) ([]*MemoryFact, error)
}

// AuditLog is append-only. There is no update or delete.
type AuditLog interface {
	AppendAudit(ctx context.Context, e *AuditEntry) error

	// ListAudit returns the latest entries, newest first. Read-only.
	ListAudit(ctx context.Context, limit int) ([]*AuditEntry, error)
}

// ChatLog persists conversation history.
type ChatLog interface {
	AppendChat(ctx context.Context, m *ChatMessage) error

	// RecentChats returns the latest messages for a person (empty ID for guests), newest first.
	RecentChats(ctx context.Context, personID, role string, limit int) ([]*ChatMessage, error)
}

// Repository is the full capability set the orchestrator depends on.
type Repository interface {
	PersonStore
	SessionStore
	KnowledgeStore
	HumorStore
	TaskStore
	FactStore
	AuditLog
	ChatLog
	UploadTracker
}

// ErrPersonNotFound indicates that no person exists with the given ID.
var ErrPersonNotFound = errors.New("person not found")

// ErrTaskNotFound indicates that no task exists with the given ID.
var ErrTaskNotFound = errors.New("task not found")
