package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// categoryRepositoryInMemory хранит справочник категорий документов в памяти.
type categoryRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.DocumentCategory
}

// NewCategoryRepository создаёт in-memory реализацию DocumentCategoryRepository.
func NewCategoryRepository() domain.DocumentCategoryRepository {
	return &categoryRepositoryInMemory{items: make(map[string]domain.DocumentCategory)}
}

// Create сохраняет новую категорию документов.
func (r *categoryRepositoryInMemory) Create(category domain.DocumentCategory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[category.ID]; ok {
		return fmt.Errorf("category %s: %w", category.ID, domain.ErrAlreadyExists)
	}
	// Код категории уникален в справочнике.
	for _, existing := range r.items {
		if existing.Code == category.Code {
			return fmt.Errorf("category code %s: %w", category.Code, domain.ErrAlreadyExists)
		}
	}

	r.items[category.ID] = category
	return nil
}

// Get возвращает категорию по идентификатору.
func (r *categoryRepositoryInMemory) Get(id string) (domain.DocumentCategory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	category, ok := r.items[id]
	if !ok {
		return domain.DocumentCategory{}, fmt.Errorf("category %s: %w", id, domain.ErrNotFound)
	}
	return category, nil
}

// ListAll возвращает справочник по возрастанию порядка отображения.
func (r *categoryRepositoryInMemory) ListAll() ([]domain.DocumentCategory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.DocumentCategory, 0, len(r.items))
	for _, category := range r.items {
		result = append(result, category)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Code < result[j].Code
	})

	return result, nil
}

var _ domain.DocumentCategoryRepository = (*categoryRepositoryInMemory)(nil)
