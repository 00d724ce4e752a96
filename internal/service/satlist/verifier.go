// Package satlist реализует проверку налоговых идентификаторов по внешним
// спискам нарушителей: локальный верификатор по загруженным спискам,
// кэширующий декоратор и circuit breaker поверх любого верификатора.
package satlist

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// StaticVerifier проверяет идентификаторы по локально загруженным спискам.
// Внешний сервис не предоставляет публичного API, поэтому списки
// загружаются заранее и периодически обновляются целиком.
type StaticVerifier struct {
	mu         sync.RWMutex
	definitive map[string]struct{}
	presumed   map[string]struct{}
	logger     *log.Entry
}

// NewStaticVerifier создает верификатор по локальным спискам.
// Элементы списков нормализуются, пустые и невалидные отбрасываются.
func NewStaticVerifier(definitive, presumed []string, logger *log.Entry) *StaticVerifier {
	if logger == nil {
		logger = log.New().WithField("component", "satlist-verifier")
	}

	v := &StaticVerifier{logger: logger}
	v.UpdateLists(definitive, presumed)
	return v
}

// Verify проверяет идентификатор по обоим спискам.
func (v *StaticVerifier) Verify(ctx context.Context, taxID string) (domain.VerificationResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.VerificationResult{}, err
	}

	normalized := domain.NormalizeTaxID(taxID)
	if !domain.ValidTaxID(normalized) {
		return domain.VerificationResult{}, fmt.Errorf("tax id %q: %w", taxID, domain.ErrTaxIDInvalid)
	}

	v.mu.RLock()
	_, inDefinitive := v.definitive[normalized]
	_, inPresumed := v.presumed[normalized]
	v.mu.RUnlock()

	return domain.VerificationResult{
		InDefinitiveList: inDefinitive,
		InPresumedList:   inPresumed,
		CheckedAt:        time.Now().UTC(),
	}, nil
}

// UpdateLists атомарно заменяет оба списка свежевыгруженными.
func (v *StaticVerifier) UpdateLists(definitive, presumed []string) {
	definitiveSet := normalizeSet(definitive)
	presumedSet := normalizeSet(presumed)

	v.mu.Lock()
	v.definitive = definitiveSet
	v.presumed = presumedSet
	v.mu.Unlock()

	v.logger.WithFields(log.Fields{
		"definitive_count": len(definitiveSet),
		"presumed_count":   len(presumedSet),
	}).Info("списки верификации обновлены")
}

// Counts возвращает размеры загруженных списков.
func (v *StaticVerifier) Counts() (definitive, presumed int) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.definitive), len(v.presumed)
}

func normalizeSet(taxIDs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(taxIDs))
	for _, taxID := range taxIDs {
		normalized := domain.NormalizeTaxID(taxID)
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	return set
}

var _ domain.ListVerifier = (*StaticVerifier)(nil)
