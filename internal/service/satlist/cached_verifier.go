package satlist

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// ResultCache хранит результаты проверок с ограниченным сроком свежести.
type ResultCache interface {
	Get(ctx context.Context, taxID string) (domain.VerificationResult, bool, error)
	Set(ctx context.Context, taxID string, result domain.VerificationResult) error
}

// CachedVerifier отвечает из кэша и обращается к вложенному верификатору
// только при промахе. Ошибки кэша не фатальны: проверка уходит дальше.
// Кэшируются только успешные результаты.
type CachedVerifier struct {
	inner  domain.ListVerifier
	cache  ResultCache
	logger *log.Entry
}

// NewCachedVerifier оборачивает верификатор кэшем. При nil-кэше
// возвращается вложенный верификатор без обёртки.
func NewCachedVerifier(inner domain.ListVerifier, cache ResultCache, logger *log.Entry) domain.ListVerifier {
	if cache == nil {
		return inner
	}
	if logger == nil {
		logger = log.New().WithField("component", "satlist-cache")
	}

	return &CachedVerifier{
		inner:  inner,
		cache:  cache,
		logger: logger,
	}
}

// Verify проверяет идентификатор, используя кэш как первый уровень.
func (v *CachedVerifier) Verify(ctx context.Context, taxID string) (domain.VerificationResult, error) {
	normalized := domain.NormalizeTaxID(taxID)

	cached, ok, err := v.cache.Get(ctx, normalized)
	if err != nil {
		v.logger.WithError(err).WithField("tax_id", normalized).Warn("кэш верификации недоступен, идём к сервису")
	} else if ok {
		cached.FromCache = true
		return cached, nil
	}

	result, err := v.inner.Verify(ctx, taxID)
	if err != nil {
		return domain.VerificationResult{}, err
	}

	if cacheErr := v.cache.Set(ctx, normalized, result); cacheErr != nil {
		v.logger.WithError(cacheErr).WithField("tax_id", normalized).Warn("не удалось сохранить результат в кэш")
	}

	return result, nil
}

var _ domain.ListVerifier = (*CachedVerifier)(nil)
