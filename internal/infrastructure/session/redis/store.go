// Package redis holds the ephemeral session event store. Each session is an
// ordered list under chat_session:<id>; the idle timer is a companion marker
// key so the entries themselves survive the timeout and stay available for
// reconciliation.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "chat_session:"
	timerKeyPrefix   = "chat_session_ttl:"
)

type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func Open(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Append pushes one entry onto the session list and arms the idle timer. Every
// append resets the timer, so the session only becomes due after a full idle
// period with no activity.
func (s *Store) Append(ctx context.Context, sessionID string, entry []byte, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, sessionKey(sessionID), entry)
	pipe.Set(ctx, timerKey(sessionID), 1, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) Entries(ctx context.Context, sessionID string) ([][]byte, error) {
	values, err := s.client.LRange(ctx, sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		out = append(out, []byte(v))
	}
	return out, nil
}

// RemainingTTL reports how long until the session is due. An expired or
// missing timer key reads as zero, meaning due now.
func (s *Store) RemainingTTL(ctx context.Context, sessionID string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, timerKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("session ttl %s: %w", sessionID, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID), timerKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), sessionKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return out, nil
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func timerKey(sessionID string) string {
	return timerKeyPrefix + sessionID
}
