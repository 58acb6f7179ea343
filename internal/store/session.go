package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

const sessionKey = "attendance:session"

// SessionStore persists the active-session record in Redis so that a
// restarted process can pick up where it left off.
type SessionStore struct {
	redis *redis.Client
}

func NewSessionStore(redisClient *redis.Client) *SessionStore {
	return &SessionStore{redis: redisClient}
}

func (s *SessionStore) Save(ctx context.Context, rec SessionRecord) error {
	if s.redis == nil {
		return errors.New("session store not configured")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, sessionKey, payload, 0).Err()
}

func (s *SessionStore) Load(ctx context.Context) (SessionRecord, bool, error) {
	if s.redis == nil {
		return SessionRecord{}, false, nil
	}
	payload, err := s.redis.Get(ctx, sessionKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, err
	}

	var rec SessionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		// corrupt record: treat as absent rather than wedging restore
		return SessionRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, sessionKey).Err()
}
