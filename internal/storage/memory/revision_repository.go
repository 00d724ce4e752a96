package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// revisionRepositoryInMemory хранит журнал ревизий в памяти.
// Для атомарной записи ревизии вместе с обновлением отслеживания репозиторий
// держит ссылку на хранилище отслеживания: сначала сохраняется запись
// отслеживания, и только при успехе ревизия попадает в журнал.
type revisionRepositoryInMemory struct {
	mu        sync.RWMutex
	items     map[string][]domain.Revision
	trackings domain.TrackingRepository
}

// NewRevisionRepository создаёт in-memory реализацию RevisionRepository.
func NewRevisionRepository(trackings domain.TrackingRepository) domain.RevisionRepository {
	return &revisionRepositoryInMemory{
		items:     make(map[string][]domain.Revision),
		trackings: trackings,
	}
}

// Append добавляет ревизию в журнал.
func (r *revisionRepositoryInMemory) Append(revision domain.Revision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.appendLocked(revision)
	return nil
}

// AppendWithTracking атомарно добавляет ревизию и сохраняет запись отслеживания.
func (r *revisionRepositoryInMemory) AppendWithTracking(revision domain.Revision, tracking domain.ShipmentTracking) error {
	if r.trackings == nil {
		return fmt.Errorf("revision %s: tracking repository is not configured", revision.ID)
	}

	if err := r.trackings.Save(tracking); err != nil {
		return fmt.Errorf("save tracking %s: %w", tracking.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.appendLocked(revision)
	return nil
}

func (r *revisionRepositoryInMemory) appendLocked(revision domain.Revision) {
	if revision.CreatedAt.IsZero() {
		revision.CreatedAt = time.Now().UTC()
	}
	r.items[revision.TrackingID] = append(r.items[revision.TrackingID], revision)
}

// ListByTracking возвращает ревизии записи от новых к старым.
func (r *revisionRepositoryInMemory) ListByTracking(trackingID string) ([]domain.Revision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	revisions := r.items[trackingID]
	result := make([]domain.Revision, len(revisions))
	copy(result, revisions)

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

var _ domain.RevisionRepository = (*revisionRepositoryInMemory)(nil)
