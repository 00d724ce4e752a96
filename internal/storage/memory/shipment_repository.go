package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// shipmentRepositoryInMemory хранит операции в памяти (для разработки/тестов).
type shipmentRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Shipment
}

// NewShipmentRepository создаёт in-memory реализацию ShipmentRepository.
func NewShipmentRepository() domain.ShipmentRepository {
	return &shipmentRepositoryInMemory{items: make(map[string]domain.Shipment)}
}

// Create сохраняет новую операцию.
func (r *shipmentRepositoryInMemory) Create(shipment domain.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[shipment.ID]; ok {
		return fmt.Errorf("shipment %s: %w", shipment.ID, domain.ErrAlreadyExists)
	}

	if shipment.CreatedAt.IsZero() {
		shipment.CreatedAt = time.Now().UTC()
	}
	r.items[shipment.ID] = shipment
	return nil
}

// Get возвращает операцию по идентификатору.
func (r *shipmentRepositoryInMemory) Get(id string) (domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	shipment, ok := r.items[id]
	if !ok {
		return domain.Shipment{}, fmt.Errorf("shipment %s: %w", id, domain.ErrNotFound)
	}
	return shipment, nil
}

// ListByClient возвращает операции клиента от новых к старым.
func (r *shipmentRepositoryInMemory) ListByClient(clientID string, limit int) ([]domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Shipment, 0)
	for _, shipment := range r.items {
		if shipment.ClientID == clientID {
			result = append(result, shipment)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ domain.ShipmentRepository = (*shipmentRepositoryInMemory)(nil)
