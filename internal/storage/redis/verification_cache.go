package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

const (
	verificationKeyPrefix  = "sat:verification:"
	defaultVerificationTTL = 24 * time.Hour
)

// cachedVerification — сериализованная форма результата проверки.
type cachedVerification struct {
	InDefinitiveList bool      `json:"in_definitive_list"`
	InPresumedList   bool      `json:"in_presumed_list"`
	CheckedAt        time.Time `json:"checked_at"`
}

// VerificationCache хранит результаты проверок по спискам в redis.
// Окно свежести задаётся TTL ключа; решение о том, какие результаты
// кэшировать, принимает вызывающая сторона.
type VerificationCache struct {
	client *Client
	ttl    time.Duration
}

// NewVerificationCache создаёт кэш результатов; ttl<=0 включает окно по умолчанию (сутки).
func NewVerificationCache(client *Client, ttl time.Duration) *VerificationCache {
	if ttl <= 0 {
		ttl = defaultVerificationTTL
	}
	return &VerificationCache{client: client, ttl: ttl}
}

// Get возвращает закэшированный результат проверки идентификатора.
// Второе значение false означает промах кэша.
func (c *VerificationCache) Get(ctx context.Context, taxID string) (domain.VerificationResult, bool, error) {
	payload, err := c.client.rdb.Get(ctx, verificationKeyPrefix+taxID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.VerificationResult{}, false, nil
	}
	if err != nil {
		return domain.VerificationResult{}, false, fmt.Errorf("get cached verification: %w", err)
	}

	var cached cachedVerification
	if err := json.Unmarshal(payload, &cached); err != nil {
		return domain.VerificationResult{}, false, fmt.Errorf("decode cached verification: %w", err)
	}

	return domain.VerificationResult{
		InDefinitiveList: cached.InDefinitiveList,
		InPresumedList:   cached.InPresumedList,
		FromCache:        true,
		CheckedAt:        cached.CheckedAt,
	}, true, nil
}

// Set записывает результат проверки под ключом идентификатора с TTL кэша.
func (c *VerificationCache) Set(ctx context.Context, taxID string, result domain.VerificationResult) error {
	payload, err := json.Marshal(cachedVerification{
		InDefinitiveList: result.InDefinitiveList,
		InPresumedList:   result.InPresumedList,
		CheckedAt:        result.CheckedAt,
	})
	if err != nil {
		return fmt.Errorf("encode cached verification: %w", err)
	}

	if err := c.client.rdb.Set(ctx, verificationKeyPrefix+taxID, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached verification: %w", err)
	}
	return nil
}
