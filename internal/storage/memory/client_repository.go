package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// clientRepositoryInMemory хранит клиентов в памяти (для разработки/тестов).
type clientRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Client
}

// NewClientRepository создаёт in-memory реализацию ClientRepository.
func NewClientRepository() domain.ClientRepository {
	return &clientRepositoryInMemory{items: make(map[string]domain.Client)}
}

// Create сохраняет нового клиента.
func (r *clientRepositoryInMemory) Create(client domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[client.ID]; ok {
		return fmt.Errorf("client %s: %w", client.ID, domain.ErrAlreadyExists)
	}

	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	r.items[client.ID] = client
	return nil
}

// Get возвращает клиента по идентификатору.
func (r *clientRepositoryInMemory) Get(id string) (domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.items[id]
	if !ok {
		return domain.Client{}, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
	}
	return client, nil
}

// ListVisible возвращает клиентов, участвующих в сверках.
func (r *clientRepositoryInMemory) ListVisible() ([]domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Client, 0, len(r.items))
	for _, client := range r.items {
		if client.Visible {
			result = append(result, client)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Company != result[j].Company {
			return result[i].Company < result[j].Company
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Save применяет обновления к клиенту с учётом optimistic locking.
func (r *clientRepositoryInMemory) Save(client domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[client.ID]
	if !ok {
		return fmt.Errorf("client %s: %w", client.ID, domain.ErrNotFound)
	}
	if existing.Version != client.Version {
		return fmt.Errorf("client %s: %w", client.ID, domain.ErrVersionConflict)
	}

	client.Version++
	r.items[client.ID] = client
	return nil
}

var _ domain.ClientRepository = (*clientRepositoryInMemory)(nil)
