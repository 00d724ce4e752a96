package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// stepRepositoryInMemory хранит каталог этапов в памяти (для разработки/тестов).
type stepRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Step
}

// NewStepRepository создаёт in-memory реализацию StepRepository.
func NewStepRepository() domain.StepRepository {
	return &stepRepositoryInMemory{items: make(map[string]domain.Step)}
}

// Create сохраняет новый этап каталога.
func (r *stepRepositoryInMemory) Create(step domain.Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[step.ID]; ok {
		return fmt.Errorf("step %s: %w", step.ID, domain.ErrAlreadyExists)
	}
	// Номер этапа уникален в каталоге.
	if step.Number != 0 {
		for _, existing := range r.items {
			if existing.Number == step.Number {
				return fmt.Errorf("step number %d: %w", step.Number, domain.ErrAlreadyExists)
			}
		}
	}

	r.items[step.ID] = step
	return nil
}

// Get возвращает этап по идентификатору.
func (r *stepRepositoryInMemory) Get(id string) (domain.Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, ok := r.items[id]
	if !ok {
		return domain.Step{}, fmt.Errorf("step %s: %w", id, domain.ErrNotFound)
	}
	return step, nil
}

// ListAll возвращает каталог по возрастанию номера; этапы без номера — в конце.
func (r *stepRepositoryInMemory) ListAll() ([]domain.Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Step, 0, len(r.items))
	for _, step := range r.items {
		result = append(result, step)
	}

	sort.Slice(result, func(i, j int) bool {
		left, right := result[i], result[j]
		if (left.Number == 0) != (right.Number == 0) {
			return right.Number == 0
		}
		if left.Number != right.Number {
			return left.Number < right.Number
		}
		return left.ID < right.ID
	})

	return result, nil
}

var _ domain.StepRepository = (*stepRepositoryInMemory)(nil)
