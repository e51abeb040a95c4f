// Package session maps opaque cookie tokens to authenticated identities.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSession is returned when a session id is unknown or expired.
var ErrNoSession = errors.New("session not found or expired")

// sessionData is the JSON blob stored per session.
type sessionData struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore holds session state in Redis, keyed by opaque session id.
type RedisStore struct {
	client      *redis.Client
	prefix      string
	statePrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:      client,
		prefix:      "sess:",
		statePrefix: "oauthstate:",
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Create starts a session for the user and returns its opaque id.
func (s *RedisStore) Create(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	data := sessionData{
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal session data: %w", err)
	}

	sessionID := newSessionID()
	if err := s.client.Set(ctx, s.key(sessionID), jsonData, ttl).Err(); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return sessionID, nil
}

// Lookup resolves a session id to the user id it authenticates.
func (s *RedisStore) Lookup(ctx context.Context, sessionID string) (string, error) {
	jsonData, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}

	var data sessionData
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return "", fmt.Errorf("unmarshal session data: %w", err)
	}
	if data.UserID == "" {
		return "", ErrNoSession
	}
	return data.UserID, nil
}

// Revoke deletes a session unconditionally. Revoking an unknown id succeeds.
func (s *RedisStore) Revoke(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// SaveState records an OAuth state nonce for the federated login handshake.
func (s *RedisStore) SaveState(ctx context.Context, state string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.statePrefix+state, "1", ttl).Err(); err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

// TakeState consumes an OAuth state nonce. Each nonce is single-use.
func (s *RedisStore) TakeState(ctx context.Context, state string) error {
	deleted, err := s.client.Del(ctx, s.statePrefix+state).Result()
	if err != nil {
		return fmt.Errorf("take oauth state: %w", err)
	}
	if deleted == 0 {
		return ErrNoSession
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
