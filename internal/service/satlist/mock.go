package satlist

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// MockVerifier — конфигурируемая заглушка ListVerifier для тестов.
type MockVerifier struct {
	Result domain.VerificationResult
	Err    error

	Calls      int
	LastTaxID  string
	VerifiedAt []string
}

// NewMockVerifier возвращает mock с чистым результатом по умолчанию.
func NewMockVerifier() *MockVerifier {
	return &MockVerifier{}
}

// Verify возвращает заранее настроенный результат и считает вызовы.
func (m *MockVerifier) Verify(_ context.Context, taxID string) (domain.VerificationResult, error) {
	m.Calls++
	m.LastTaxID = taxID
	m.VerifiedAt = append(m.VerifiedAt, taxID)

	if m.Err != nil {
		return domain.VerificationResult{}, m.Err
	}

	result := m.Result
	if result.CheckedAt.IsZero() {
		result.CheckedAt = time.Now().UTC()
	}
	return result, nil
}

var _ domain.ListVerifier = (*MockVerifier)(nil)
