package state

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps conversation state in Redis so it survives process
// restarts. Expiry rides on the Redis key TTL. Errors degrade to "no state":
// a lost entry means the user restarts the flow, which is the same behavior
// as a process restart with the memory store.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore connects to Redis; returns an error when the server is
// unreachable so the caller can fall back to the memory store.
func NewRedisStore(addr, pass string, db int, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{
		client: client,
		prefix: "conv:",
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (s *RedisStore) key(chatID int64) string {
	return s.prefix + strconv.FormatInt(chatID, 10)
}

func (s *RedisStore) Get(chatID int64) (Conversation, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, s.key(chatID)).Bytes()
	if err == redis.Nil {
		return Conversation{}, false
	}
	if err != nil {
		s.logger.Warn("redis state get failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return Conversation{}, false
	}

	var conv Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		s.logger.Warn("redis state decode failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return Conversation{}, false
	}
	return conv, true
}

func (s *RedisStore) Set(chatID int64, conv Conversation) {
	raw, err := json.Marshal(conv)
	if err != nil {
		s.logger.Warn("redis state encode failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, s.key(chatID), raw, s.ttl).Err(); err != nil {
		s.logger.Warn("redis state set failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (s *RedisStore) Clear(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, s.key(chatID)).Err(); err != nil {
		s.logger.Warn("redis state clear failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
