package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// notificationKey определяет уникальность уведомления: тип плюс субъект.
type notificationKey struct {
	notificationType domain.NotificationType
	subjectKind      domain.SubjectKind
	subjectID        string
}

// notificationRepositoryInMemory хранит уведомления в памяти (для разработки/тестов).
type notificationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Notification
	byKey map[notificationKey]string
}

// NewNotificationRepository создаёт in-memory реализацию NotificationRepository.
func NewNotificationRepository() domain.NotificationRepository {
	return &notificationRepositoryInMemory{
		items: make(map[string]domain.Notification),
		byKey: make(map[notificationKey]string),
	}
}

// GetOrCreate возвращает существующее уведомление по ключу (тип, субъект)
// или создаёт новое. Второй результат true, если запись была создана.
func (r *notificationRepositoryInMemory) GetOrCreate(notification domain.Notification) (domain.Notification, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := notificationKey{
		notificationType: notification.Type,
		subjectKind:      notification.Subject.Kind,
		subjectID:        notification.Subject.ID,
	}

	if id, ok := r.byKey[key]; ok {
		return r.items[id], false, nil
	}

	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	r.items[notification.ID] = notification
	r.byKey[key] = notification.ID
	return notification, true, nil
}

// Get возвращает уведомление по идентификатору.
func (r *notificationRepositoryInMemory) Get(id string) (domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	notification, ok := r.items[id]
	if !ok {
		return domain.Notification{}, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return notification, nil
}

// ListUnread возвращает непрочитанные уведомления, новые первыми.
func (r *notificationRepositoryInMemory) ListUnread(limit int) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Notification, 0)
	for _, n := range r.items {
		if !n.IsRead {
			result = append(result, n)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// MarkRead помечает уведомление прочитанным. Повторный вызов не ошибка.
func (r *notificationRepositoryInMemory) MarkRead(id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	notification, ok := r.items[id]
	if !ok {
		return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	if notification.IsRead {
		return nil
	}

	notification.IsRead = true
	notification.ReadAt = at
	r.items[id] = notification
	return nil
}

// DeleteReadBefore удаляет прочитанные уведомления старше указанной даты.
// За один вызов удаляется не больше limit записей.
func (r *notificationRepositoryInMemory) DeleteReadBefore(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0)
	for id, n := range r.items {
		if n.IsRead && n.CreatedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	for _, id := range ids {
		n := r.items[id]
		delete(r.items, id)
		delete(r.byKey, notificationKey{
			notificationType: n.Type,
			subjectKind:      n.Subject.Kind,
			subjectID:        n.Subject.ID,
		})
	}

	return len(ids), nil
}

var _ domain.NotificationRepository = (*notificationRepositoryInMemory)(nil)
