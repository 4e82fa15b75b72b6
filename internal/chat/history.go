// Package chat keeps the bounded recent-message buffer used to backfill
// reconnecting clients. Messages are ephemeral: the buffer is the only
// retention, there is no durable chat storage.
package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

const historyKey = "chat:recent"

// History is a capped FIFO of recent chat messages. With a Redis client it
// is a capped list (LPUSH + LTRIM) so the buffer survives process restarts;
// without one it degrades to an in-process ring.
type History struct {
	rdb    *redis.Client
	max    int
	logger *zap.Logger

	mu   sync.Mutex
	ring []models.ChatMessage
}

// NewHistory creates a chat history buffer keeping at most max messages.
// rdb may be nil.
func NewHistory(rdb *redis.Client, max int, logger *zap.Logger) *History {
	if max <= 0 {
		max = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{rdb: rdb, max: max, logger: logger}
}

// Append records a message, evicting the oldest once the cap is reached.
func (h *History) Append(ctx context.Context, msg models.ChatMessage) {
	if h.rdb == nil {
		h.mu.Lock()
		h.ring = append(h.ring, msg)
		if len(h.ring) > h.max {
			h.ring = h.ring[len(h.ring)-h.max:]
		}
		h.mu.Unlock()
		return
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return
	}
	pipe := h.rdb.Pipeline()
	pipe.LPush(ctx, historyKey, body)
	pipe.LTrim(ctx, historyKey, 0, int64(h.max-1))
	if _, err := pipe.Exec(ctx); err != nil {
		h.logger.Warn("chat history append failed", zap.Error(err))
	}
}

// Recent returns the buffered messages oldest-first.
func (h *History) Recent(ctx context.Context) []models.ChatMessage {
	if h.rdb == nil {
		h.mu.Lock()
		defer h.mu.Unlock()
		out := make([]models.ChatMessage, len(h.ring))
		copy(out, h.ring)
		return out
	}

	raw, err := h.rdb.LRange(ctx, historyKey, 0, int64(h.max-1)).Result()
	if err != nil {
		h.logger.Warn("chat history read failed", zap.Error(err))
		return nil
	}
	// LPUSH stores newest first; reverse to oldest-first.
	out := make([]models.ChatMessage, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out
}
