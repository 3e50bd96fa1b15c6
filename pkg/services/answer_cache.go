package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/apperrors"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

// CachedAnswer is the stored shape of one answered question.
type CachedAnswer struct {
	Answer  string          `json:"answer"`
	Payload any             `json:"payload,omitempty"`
	Tool    models.ToolName `json:"tool"`
}

// AnswerCache stores formatted answers keyed by shop and normalized question
// text. A cache failure is never a request failure: Get degrades to a miss
// and Set is best-effort.
type AnswerCache interface {
	Get(ctx context.Context, shopID int64, text string) (CachedAnswer, error)
	Set(ctx context.Context, shopID int64, text string, entry CachedAnswer) error
}

type answerCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewAnswerCache creates a Redis-backed answer cache. A nil client disables
// it: every Get misses and every Set is a no-op.
func NewAnswerCache(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) AnswerCache {
	return &answerCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.Named("answer-cache"),
	}
}

// Get implements AnswerCache. Every failure shape (disabled cache, absent
// key, Redis down, corrupt entry) comes back as ErrCacheMiss so callers have
// a single path.
func (c *answerCache) Get(ctx context.Context, shopID int64, text string) (CachedAnswer, error) {
	if c.client == nil {
		return CachedAnswer{}, apperrors.ErrCacheMiss
	}

	key := c.key(shopID, text)
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed, treating as miss", zap.Error(err))
		}
		return CachedAnswer{}, apperrors.ErrCacheMiss
	}

	var entry CachedAnswer
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("corrupt cache entry, treating as miss",
			zap.String("key", key),
			zap.Error(err))
		return CachedAnswer{}, apperrors.ErrCacheMiss
	}

	return entry, nil
}

// Set implements AnswerCache.
func (c *answerCache) Set(ctx context.Context, shopID int64, text string, entry CachedAnswer) error {
	if c.client == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, c.key(shopID, text), data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// key hashes the shop and the normalized question so semantically identical
// phrasings ("Total revenue?" / "total   revenue") share an entry and raw
// question text never lands in Redis keys.
func (c *answerCache) key(shopID int64, text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", shopID, normalizeQuestion(text))))
	return c.keyPrefix + hex.EncodeToString(sum[:])
}

// normalizeQuestion lowercases, collapses whitespace, and strips trailing
// punctuation.
func normalizeQuestion(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, "?!. ")
}
