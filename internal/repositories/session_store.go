package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/desertthunder/vqa/internal/session"
)

// SessionKey is the key the persisted login is stored under.
const SessionKey = "session"

// SessionStore implements session.Store on a kv_store row.
type SessionStore struct {
	kv *KVRepository
}

func NewSessionStore(kv *KVRepository) *SessionStore {
	return &SessionStore{kv: kv}
}

// LoadSession returns (nil, nil) when no session is stored. A corrupt row is deleted and
// reported as no session.
func (s *SessionStore) LoadSession(ctx context.Context) (*session.Persisted, error) {
	raw, err := s.kv.Get(ctx, SessionKey)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p session.Persisted
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		if derr := s.kv.Delete(ctx, SessionKey); derr != nil {
			return nil, derr
		}
		return nil, nil
	}
	return &p, nil
}

func (s *SessionStore) SaveSession(ctx context.Context, p session.Persisted) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.kv.Put(ctx, SessionKey, string(data))
}

func (s *SessionStore) ClearSession(ctx context.Context) error {
	return s.kv.Delete(ctx, SessionKey)
}
