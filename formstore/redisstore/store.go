// Package redisstore backs form sessions with Redis, relying on native key
// TTLs for idle eviction.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finwire/payflow/form"
)

const defaultTTL = 30 * time.Minute

// Store implements form.Store over a Redis client. Alongside each session
// key it maintains an active-flow pointer per owner so routing can find the
// in-flight flow without scanning.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

var _ form.Store = (*Store)(nil)

// New creates a Redis-backed store. A non-positive idleTTL falls back to the
// default of 30 minutes.
func New(client *redis.Client, idleTTL time.Duration) *Store {
	if idleTTL <= 0 {
		idleTTL = defaultTTL
	}
	return &Store{client: client, ttl: idleTTL}
}

// Get returns the stored session or form.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, owner int64, flowID string) (*form.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(owner, flowID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, form.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get session: %w", err)
	}
	var sess form.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("redisstore: decode session: %w", err)
	}
	return &sess, nil
}

// Put stores the session and refreshes both the session key and the owner's
// active-flow pointer with the idle TTL.
func (s *Store) Put(ctx context.Context, owner int64, flowID string, sess *form.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redisstore: encode session: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(owner, flowID), b, s.ttl)
	if sess.Active() {
		pipe.Set(ctx, activeKey(owner), flowID, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: put session: %w", err)
	}
	return nil
}

// Remove deletes the session and the active pointer when it referenced this
// flow. Removing a missing session is a no-op.
func (s *Store) Remove(ctx context.Context, owner int64, flowID string) error {
	if err := s.client.Del(ctx, sessionKey(owner, flowID)).Err(); err != nil {
		return fmt.Errorf("redisstore: remove session: %w", err)
	}
	current, err := s.client.Get(ctx, activeKey(owner)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redisstore: read active pointer: %w", err)
	}
	if current == flowID {
		if err := s.client.Del(ctx, activeKey(owner)).Err(); err != nil {
			return fmt.Errorf("redisstore: clear active pointer: %w", err)
		}
	}
	return nil
}

// ActiveFlow resolves the owner's in-flight flow via the pointer key. A
// dangling pointer whose session already expired is cleaned up lazily.
func (s *Store) ActiveFlow(ctx context.Context, owner int64) (string, error) {
	flowID, err := s.client.Get(ctx, activeKey(owner)).Result()
	if errors.Is(err, redis.Nil) {
		return "", form.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redisstore: read active pointer: %w", err)
	}
	exists, err := s.client.Exists(ctx, sessionKey(owner, flowID)).Result()
	if err != nil {
		return "", fmt.Errorf("redisstore: check session: %w", err)
	}
	if exists == 0 {
		_ = s.client.Del(ctx, activeKey(owner)).Err()
		return "", form.ErrSessionNotFound
	}
	return flowID, nil
}

func sessionKey(owner int64, flowID string) string {
	return fmt.Sprintf("form:session:%d:%s", owner, flowID)
}

func activeKey(owner int64) string {
	return fmt.Sprintf("form:active:%d", owner)
}
