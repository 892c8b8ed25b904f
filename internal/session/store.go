package session

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/vqa/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Persisted is the serialized form of a session.
type Persisted struct {
	Token *oauth2.Token `json:"token"`
	User  models.User   `json:"user"`
}

// Store persists a session between process invocations.
//
// LoadSession returns (nil, nil) when nothing is stored.
type Store interface {
	LoadSession(ctx context.Context) (*Persisted, error)
	SaveSession(ctx context.Context, s Persisted) error
	ClearSession(ctx context.Context) error
}

// MemoryStore is an in-process [Store].
type MemoryStore struct {
	mu      sync.Mutex
	session *Persisted
}

func (m *MemoryStore) LoadSession(context.Context) (*Persisted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, s Persisted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	return nil
}

func (m *MemoryStore) ClearSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// ExpiresAt returns when tok stops being valid, using the earlier of the token response
// expiry and the JWT exp claim. The zero time means no expiry is known.
//
// The signature is not verified; the server remains the authority on validity.
func ExpiresAt(tok *oauth2.Token) time.Time {
	if tok == nil {
		return time.Time{}
	}

	expiry := tok.Expiry
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		if exp := claims.ExpiresAt.Time; expiry.IsZero() || exp.Before(expiry) {
			expiry = exp
		}
	}
	return expiry
}

// Expired reports whether tok has a known expiry at or before now.
func Expired(tok *oauth2.Token, now time.Time) bool {
	exp := ExpiresAt(tok)
	return !exp.IsZero() && !now.Before(exp)
}
