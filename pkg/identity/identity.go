// Package identity implements the claim/verify challenge that mints trust
// sessions, and resolves callers from session tokens.
//
// Every failure on these paths degrades to a guest caller. Callers are never
// told whether a person exists or why a secret did not match.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dan-solli/moex/pkg/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// HashIterations is the PBKDF2-HMAC-SHA256 work factor for secrets.
	HashIterations = 120000
	// SaltSize is the number of random salt bytes per person.
	SaltSize = 16
	// HashSize is the derived key length.
	HashSize = 32
	// TokenBytes is the entropy of a session token (256 bits).
	TokenBytes = 32
)

// Claim statuses.
const (
	StatusFound    = "found"
	StatusNotFound = "not_found"
)

// User-facing messages. None of them tell a missing person apart from a wrong secret.
const (
	MessageNotFound = "I don't see you on Moe's list yet. Guest mode?"
	PromptSecret    = "What's the secret word?"
	MessageMismatch = "That doesn't match. Try again or continue as guest."
)

var (
	// ErrPersonNotFound is returned by Verify and Disable for an unknown
	// person. Verify also returns it for a disabled person.
	ErrPersonNotFound = errors.New("person not found")

	// ErrSecretMismatch is returned by Verify when the secret is wrong.
	ErrSecretMismatch = errors.New(MessageMismatch)

	// ErrSessionNotFound, ErrSessionExpired and ErrPersonDisabled are only
	// reported as Caller.Reason; Resolve never fails with them.
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrPersonDisabled  = errors.New("person disabled")
)

// Repository is the storage capability the manager needs.
type Repository interface {
	store.PersonStore
	store.SessionStore
}

// Manager runs claim/verify and resolves session tokens.
type Manager struct {
	repo   Repository
	trust  time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewManager creates a Manager whose sessions stay trusted for trust.
func NewManager(repo Repository, trust time.Duration) *Manager {
	return &Manager{
		repo:   repo,
		trust:  trust,
		now:    time.Now,
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger.
func (m *Manager) WithLogger(logger *zap.Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithClock replaces the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// Registration is the admin-provided data for a new person.
type Registration struct {
	Name    string
	Email   string
	Handle  string
	Tags    string
	Persona string
	Secret  string
}

// Register creates an enabled person with a freshly salted secret hash.
func (m *Manager) Register(ctx context.Context, r Registration) (*store.Person, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	if r.Secret == "" {
		return nil, fmt.Errorf("secret is required")
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	p := &store.Person{
		Name:       strings.TrimSpace(r.Name),
		Email:      strings.TrimSpace(r.Email),
		Handle:     strings.TrimSpace(r.Handle),
		Tags:       r.Tags,
		Persona:    r.Persona,
		SecretSalt: salt,
		SecretHash: hashSecret(r.Secret, salt),
		Enabled:    true,
		CreatedAt:  m.now(),
	}
	if err := m.repo.AddPerson(ctx, p); err != nil {
		return nil, err
	}

	m.logger.Info("person registered", zap.String("person_id", p.ID))
	return p, nil
}

// ClaimQuery names the person to claim. Identifier is tried against every
// field; the specific fields override it for their own lookup.
type ClaimQuery struct {
	Identifier string
	Email      string
	Handle     string
	Name       string
}

// ClaimResult is the outcome of a claim.
type ClaimResult struct {
	Status      string
	PersonID    string
	NeedsSecret bool
	Prompt      string
	Message     string
}

// Claim looks up an enabled person by exact email, then handle, then name.
// Not finding anyone is a normal outcome, not an error.
func (m *Manager) Claim(ctx context.Context, q ClaimQuery) (*ClaimResult, error) {
	lookups := []struct {
		field, value string
	}{
		{"email", firstNonEmpty(q.Email, q.Identifier)},
		{"handle", firstNonEmpty(q.Handle, q.Identifier)},
		{"name", firstNonEmpty(q.Name, q.Identifier)},
	}

	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		p, err := m.repo.FindEnabledPersonBy(ctx, l.field, l.value)
		if err != nil {
			return nil, err
		}
		if p != nil {
			m.logger.Debug("claim matched", zap.String("field", l.field), zap.String("person_id", p.ID))
			return &ClaimResult{
				Status:      StatusFound,
				PersonID:    p.ID,
				NeedsSecret: true,
				Prompt:      PromptSecret,
			}, nil
		}
	}

	return &ClaimResult{Status: StatusNotFound, Message: MessageNotFound}, nil
}

// Grant is a freshly minted trust session.
type Grant struct {
	Token        string
	PersonID     string
	TrustedUntil time.Time
}

// Verify checks secret against the person's stored hash and, on success,
// mints a new session. Every successful call yields a distinct token.
func (m *Manager) Verify(ctx context.Context, personID, secret string) (*Grant, error) {
	p, err := m.repo.GetPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.Enabled {
		return nil, ErrPersonNotFound
	}

	if subtle.ConstantTimeCompare(hashSecret(secret, p.SecretSalt), p.SecretHash) != 1 {
		m.logger.Info("secret mismatch", zap.String("person_id", p.ID))
		return nil, ErrSecretMismatch
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := &store.Session{
		Token:        token,
		PersonID:     p.ID,
		TrustedUntil: now.Add(m.trust),
		CreatedAt:    now,
	}
	if err := m.repo.AddSession(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Info("session minted",
		zap.String("person_id", p.ID),
		zap.Time("trusted_until", sess.TrustedUntil))

	return &Grant{Token: token, PersonID: p.ID, TrustedUntil: sess.TrustedUntil}, nil
}

// Caller is the resolved identity behind a request.
type Caller struct {
	Person  *store.Person  // nil for guests
	Session *store.Session // nil for guests
	Reason  error          // why the caller is a guest, for logs only
}

// Anonymous reports whether the caller is a guest.
func (c Caller) Anonymous() bool {
	return c.Person == nil
}

// Name returns the caller's display name, "Guest" when anonymous.
func (c Caller) Name() string {
	if c.Person == nil {
		return "Guest"
	}
	return c.Person.Name
}

// PersonID returns the caller's person ID, empty when anonymous.
func (c Caller) PersonID() string {
	if c.Person == nil {
		return ""
	}
	return c.Person.ID
}

// Resolve maps a token to a caller. An empty, unknown or expired token, or a
// disabled owner, yields an anonymous caller. Only storage failures are errors.
func (m *Manager) Resolve(ctx context.Context, token string) (Caller, error) {
	if token == "" {
		return Caller{Reason: ErrSessionNotFound}, nil
	}

	sess, err := m.repo.GetSession(ctx, token)
	if err != nil {
		return Caller{}, err
	}
	if sess == nil {
		return Caller{Reason: ErrSessionNotFound}, nil
	}
	if !m.now().Before(sess.TrustedUntil) {
		return Caller{Reason: ErrSessionExpired}, nil
	}

	p, err := m.repo.GetPerson(ctx, sess.PersonID)
	if err != nil {
		return Caller{}, err
	}
	if p == nil || !p.Enabled {
		return Caller{Reason: ErrPersonDisabled}, nil
	}

	return Caller{Person: p, Session: sess}, nil
}

// Disable turns a person off. Their sessions stop resolving immediately.
func (m *Manager) Disable(ctx context.Context, personID string) error {
	err := m.repo.DisablePerson(ctx, personID)
	if errors.Is(err, store.ErrPersonNotFound) {
		return ErrPersonNotFound
	}
	if err != nil {
		return err
	}
	m.logger.Info("person disabled", zap.String("person_id", personID))
	return nil
}

func hashSecret(secret string, salt []byte) []byte {
	return pbkdf2.Key([]byte(secret), salt, HashIterations, HashSize, sha256.New)
}

func newToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
