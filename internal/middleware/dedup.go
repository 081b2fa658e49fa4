// Package middleware holds telebot middleware. Dedup drops Telegram updates
// that were already processed, which matters in webhook mode where Telegram
// redelivers updates it thinks were lost.
package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

const dedupWindow = 10 * time.Minute

// Seen reports whether an update id was processed before, recording it as
// processed either way.
type Seen interface {
	Seen(updateID int) bool
}

// Dedup wraps handlers to skip duplicate updates.
func Dedup(seen Seen) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if seen.Seen(c.Update().ID) {
				return nil
			}
			return next(c)
		}
	}
}

// RedisSeen tracks processed update ids in Redis, so deduplication survives
// restarts and covers multiple bot replicas. Redis failures fail open: a
// duplicate delivery is preferable to dropping real updates.
type RedisSeen struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisSeen(rdb *redis.Client, logger *zap.Logger) *RedisSeen {
	return &RedisSeen{rdb: rdb, logger: logger}
}

func (s *RedisSeen) Seen(updateID int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	set, err := s.rdb.SetNX(ctx, fmt.Sprintf("update:%d", updateID), 1, dedupWindow).Result()
	if err != nil {
		s.logger.Warn("update dedup check failed", zap.Int("update_id", updateID), zap.Error(err))
		return false
	}
	return !set
}

// MemorySeen is the in-process fallback when Redis is not configured.
type MemorySeen struct {
	mu   sync.Mutex
	seen map[int]time.Time
}

func NewMemorySeen() *MemorySeen {
	return &MemorySeen{seen: make(map[int]time.Time)}
}

func (s *MemorySeen) Seen(updateID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if at, ok := s.seen[updateID]; ok && now.Sub(at) < dedupWindow {
		return true
	}

	// Drop stale entries opportunistically to bound the map.
	if len(s.seen) > 4096 {
		for id, at := range s.seen {
			if now.Sub(at) >= dedupWindow {
				delete(s.seen, id)
			}
		}
	}

	s.seen[updateID] = now
	return false
}
