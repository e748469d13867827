// Package presence tracks ephemeral user state: online status with a
// staleness window and per-room typing indicators with a TTL. State
// lives in Redis and expires through key TTLs, so a user with no recent
// heartbeat reads as offline without any sweep task.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/castlinker/chatd/internal/types"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultStaleAfter = 60 * time.Second
	DefaultTypingTTL  = 5 * time.Second
	MaxTypingTTL      = 30 * time.Second
)

type Store interface {
	Heartbeat(ctx context.Context, userId int, status types.PresenceStatus) error
	Get(ctx context.Context, userId int) (types.Presence, error)
	SetTyping(ctx context.Context, userId int, roomId string, ttl time.Duration) error
	ClearTyping(ctx context.Context, userId int) error
}

type RedisStore struct {
	client     *redis.Client
	staleAfter time.Duration
}

func NewRedisStore(addr, password string, db int, staleAfter time.Duration) (*RedisStore, error) {
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

	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	return &RedisStore{client: client, staleAfter: staleAfter}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func presenceKey(userId int) string {
	return "presence:" + strconv.Itoa(userId)
}

func typingKey(userId int) string {
	return "typing:" + strconv.Itoa(userId)
}

// Heartbeat overwrites the user's status and last-active time. The key
// expires after the staleness window, at which point the user reads as
// offline.
func (s *RedisStore) Heartbeat(ctx context.Context, userId int, status types.PresenceStatus) error {
	key := presenceKey(userId)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(status),
		"last_active", strconv.FormatInt(time.Now().UTC().UnixMilli(), 10),
	)
	pipe.Expire(ctx, key, s.staleAfter)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, userId int) (types.Presence, error) {
	p := types.Presence{
		UserId: userId,
		Status: types.StatusOffline,
	}

	fields, err := s.client.HGetAll(ctx, presenceKey(userId)).Result()
	if err != nil {
		return p, fmt.Errorf("get presence: %w", err)
	}

	if status, ok := fields["status"]; ok {
		p.Status = types.PresenceStatus(status)
	}

	if ms, ok := fields["last_active"]; ok {
		if unixMs, err := strconv.ParseInt(ms, 10, 64); err == nil {
			p.LastActive = time.UnixMilli(unixMs).UTC()
		}
	}

	roomId, err := s.client.Get(ctx, typingKey(userId)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return p, fmt.Errorf("get typing: %w", err)
		}
		return p, nil
	}

	p.TypingInRoom = roomId
	if ttl, err := s.client.TTL(ctx, typingKey(userId)).Result(); err == nil && ttl > 0 {
		until := time.Now().UTC().Add(ttl)
		p.TypingUntil = &until
	}

	return p, nil
}

func (s *RedisStore) SetTyping(ctx context.Context, userId int, roomId string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.ClearTyping(ctx, userId)
	}

	if ttl > MaxTypingTTL {
		ttl = MaxTypingTTL
	}

	if err := s.client.Set(ctx, typingKey(userId), roomId, ttl).Err(); err != nil {
		return fmt.Errorf("set typing: %w", err)
	}

	return nil
}

func (s *RedisStore) ClearTyping(ctx context.Context, userId int) error {
	if err := s.client.Del(ctx, typingKey(userId)).Err(); err != nil {
		return fmt.Errorf("clear typing: %w", err)
	}

	return nil
}
