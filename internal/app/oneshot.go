package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/service/compliance"
	"github.com/vladislavdragonenkov/cts/internal/service/satlist"
	"github.com/vladislavdragonenkov/cts/internal/storage/redis"
)

// OneShot держит движок сверок для разового прогона без воркеров и
// HTTP-сервера. Используется cmd/compliance-run для запуска из внешнего cron.
type OneShot struct {
	Engine compliance.Engine

	closers []func() error
}

// NewOneShot собирает движок сверок по конфигурации: хранилище, опциональный
// кэш верификации и цепочка верификатора, без планировщика.
func NewOneShot(ctx context.Context, cfg Config, logger *log.Entry) (*OneShot, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	oneShot := &OneShot{closers: []func() error{deps.close}}

	sink, documents, err := buildServices(deps, logger)
	if err != nil {
		_ = oneShot.Close()
		return nil, err
	}

	var verifyCache satlist.ResultCache
	if cfg.RedisAddr != "" {
		client, redisErr := redis.Open(ctx, cfg.RedisAddr)
		if redisErr != nil {
			logger.WithError(redisErr).Warn("failed to connect to redis, continuing without verification cache")
		} else {
			verifyCache = redis.NewVerificationCache(client, cfg.VerifyCacheTTL)
			oneShot.closers = append(oneShot.closers, client.Close)
		}
	}

	verifier, err := createVerifier(cfg, verifyCache, logger.WithField("layer", "satlist"))
	if err != nil {
		_ = oneShot.Close()
		return nil, err
	}

	oneShot.Engine = createEngine(deps, documents, verifier, sink, cfg, logger.WithField("layer", "compliance"))
	return oneShot, nil
}

// Close освобождает хранилище и кэш в обратном порядке создания.
func (o *OneShot) Close() error {
	var firstErr error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
