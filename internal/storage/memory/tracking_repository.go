package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// trackingKey — ключ уникальности записи отслеживания.
type trackingKey struct {
	shipmentID string
	stepNumber int
}

// trackingRepositoryInMemory хранит записи отслеживания в памяти.
type trackingRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[trackingKey]domain.ShipmentTracking
	byID  map[string]trackingKey
}

// NewTrackingRepository создаёт in-memory реализацию TrackingRepository.
func NewTrackingRepository() domain.TrackingRepository {
	return &trackingRepositoryInMemory{
		items: make(map[trackingKey]domain.ShipmentTracking),
		byID:  make(map[string]trackingKey),
	}
}

// Create сохраняет новую запись отслеживания.
func (r *trackingRepositoryInMemory) Create(tracking domain.ShipmentTracking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := trackingKey{tracking.ShipmentID, tracking.StepNumber}
	if _, ok := r.items[key]; ok {
		return fmt.Errorf("tracking %s/%d: %w", tracking.ShipmentID, tracking.StepNumber, domain.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	if tracking.CreatedAt.IsZero() {
		tracking.CreatedAt = now
	}
	if tracking.UpdatedAt.IsZero() {
		tracking.UpdatedAt = now
	}

	r.items[key] = tracking
	r.byID[tracking.ID] = key
	return nil
}

// Get возвращает запись по паре (shipmentID, stepNumber).
func (r *trackingRepositoryInMemory) Get(shipmentID string, stepNumber int) (domain.ShipmentTracking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tracking, ok := r.items[trackingKey{shipmentID, stepNumber}]
	if !ok {
		return domain.ShipmentTracking{}, fmt.Errorf("tracking %s/%d: %w", shipmentID, stepNumber, domain.ErrNotFound)
	}
	return tracking, nil
}

// GetByID возвращает запись по идентификатору.
func (r *trackingRepositoryInMemory) GetByID(id string) (domain.ShipmentTracking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.byID[id]
	if !ok {
		return domain.ShipmentTracking{}, fmt.Errorf("tracking %s: %w", id, domain.ErrNotFound)
	}
	return r.items[key], nil
}

// ListByShipment возвращает записи груза по возрастанию номера этапа.
func (r *trackingRepositoryInMemory) ListByShipment(shipmentID string) ([]domain.ShipmentTracking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ShipmentTracking, 0)
	for key, tracking := range r.items {
		if key.shipmentID == shipmentID {
			result = append(result, tracking)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StepNumber < result[j].StepNumber
	})

	return result, nil
}

// Save применяет обновления к записи с учётом optimistic locking.
func (r *trackingRepositoryInMemory) Save(tracking domain.ShipmentTracking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byID[tracking.ID]
	if !ok {
		return fmt.Errorf("tracking %s: %w", tracking.ID, domain.ErrNotFound)
	}

	existing := r.items[key]
	if existing.Version != tracking.Version {
		return fmt.Errorf("tracking %s: %w", tracking.ID, domain.ErrVersionConflict)
	}

	tracking.Version++
	if tracking.UpdatedAt.IsZero() {
		tracking.UpdatedAt = time.Now().UTC()
	}
	r.items[key] = tracking
	return nil
}

var _ domain.TrackingRepository = (*trackingRepositoryInMemory)(nil)
