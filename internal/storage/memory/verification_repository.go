package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// verificationRepositoryInMemory хранит журнал сверок со списками в памяти.
type verificationRepositoryInMemory struct {
	mu    sync.RWMutex
	items []domain.ExternalListVerification
}

// NewVerificationRepository создаёт in-memory реализацию VerificationRepository.
func NewVerificationRepository() domain.VerificationRepository {
	return &verificationRepositoryInMemory{}
}

// Append добавляет запись о выполненной сверке. Журнал append-only.
func (r *verificationRepositoryInMemory) Append(verification domain.ExternalListVerification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if verification.VerifiedAt.IsZero() {
		verification.VerifiedAt = time.Now().UTC()
	}
	r.items = append(r.items, verification)
	return nil
}

// ListByClient возвращает последние сверки клиента, новые первыми.
func (r *verificationRepositoryInMemory) ListByClient(clientID string, limit int) ([]domain.ExternalListVerification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ExternalListVerification, 0)
	for _, v := range r.items {
		if v.ClientID == clientID {
			result = append(result, v)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].VerifiedAt.Equal(result[j].VerifiedAt) {
			return result[i].VerifiedAt.After(result[j].VerifiedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

var _ domain.VerificationRepository = (*verificationRepositoryInMemory)(nil)
