package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps sessions in Redis with a TTL matching their expiry.
// Each user also has a set of session IDs so that a password change can
// revoke the other sessions.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore builds a Redis-backed session store.
func NewRedisSessionStore(addr, password, prefix string) *RedisSessionStore {
	return NewRedisSessionStoreFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	}), prefix)
}

// NewRedisSessionStoreFromClient wraps an existing client.
func NewRedisSessionStoreFromClient(client *redis.Client, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "freqy:session"
	}
	return &RedisSessionStore{client: client, prefix: prefix}
}

// Ping checks the Redis connection.
func (rs *RedisSessionStore) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Save writes the session with a TTL equal to its remaining lifetime.
func (rs *RedisSessionStore) Save(ctx context.Context, session *Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	userKey := rs.userKey(session.UserID)
	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, rs.sessionKey(session.ID), data, ttl)
	pipe.SAdd(ctx, userKey, session.ID)
	pipe.Expire(ctx, userKey, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Get resolves a session ID.
func (rs *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := rs.client.Get(ctx, rs.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	return &session, nil
}

// Delete removes a session and its entry in the user's set.
func (rs *RedisSessionStore) Delete(ctx context.Context, id string) error {
	session, err := rs.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := rs.client.TxPipeline()
	pipe.Del(ctx, rs.sessionKey(id))
	pipe.SRem(ctx, rs.userKey(session.UserID), id)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteUserSessions removes every session of userID except keep.
func (rs *RedisSessionStore) DeleteUserSessions(ctx context.Context, userID int64, keep string) error {
	userKey := rs.userKey(userID)
	ids, err := rs.client.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := rs.client.TxPipeline()
	queued := 0
	for _, id := range ids {
		if id == keep {
			continue
		}
		pipe.Del(ctx, rs.sessionKey(id))
		pipe.SRem(ctx, userKey, id)
		queued++
	}
	if queued == 0 {
		return nil
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Count returns the number of live sessions.
func (rs *RedisSessionStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := rs.client.Scan(ctx, cursor, rs.prefix+":id:*", 100).Result()
		if err != nil {
			return 0, err
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

// Close closes the Redis client.
func (rs *RedisSessionStore) Close() error {
	return rs.client.Close()
}

func (rs *RedisSessionStore) sessionKey(id string) string {
	return rs.prefix + ":id:" + id
}

func (rs *RedisSessionStore) userKey(userID int64) string {
	return rs.prefix + ":user:" + strconv.FormatInt(userID, 10)
}
