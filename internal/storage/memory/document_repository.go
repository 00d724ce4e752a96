package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// documentRepositoryInMemory хранит документы досье в памяти.
type documentRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.ClientDocument
}

// NewDocumentRepository создаёт in-memory реализацию DocumentRepository.
func NewDocumentRepository() domain.DocumentRepository {
	return &documentRepositoryInMemory{items: make(map[string]domain.ClientDocument)}
}

// Create сохраняет новый документ.
func (r *documentRepositoryInMemory) Create(document domain.ClientDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[document.ID]; ok {
		return fmt.Errorf("document %s: %w", document.ID, domain.ErrAlreadyExists)
	}

	if document.CreatedAt.IsZero() {
		document.CreatedAt = time.Now().UTC()
	}
	r.items[document.ID] = document
	return nil
}

// Get возвращает документ по идентификатору.
func (r *documentRepositoryInMemory) Get(id string) (domain.ClientDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	document, ok := r.items[id]
	if !ok {
		return domain.ClientDocument{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return document, nil
}

// ListByClient возвращает документы клиента от новых к старым.
func (r *documentRepositoryInMemory) ListByClient(clientID string) ([]domain.ClientDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ClientDocument, 0)
	for _, document := range r.items {
		if document.ClientID == clientID {
			result = append(result, document)
		}
	}
	sortDocuments(result)
	return result, nil
}

// ListByStatus возвращает документы в указанном статусе.
func (r *documentRepositoryInMemory) ListByStatus(status domain.DocumentStatus) ([]domain.ClientDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ClientDocument, 0)
	for _, document := range r.items {
		if document.Status == status {
			result = append(result, document)
		}
	}
	sortDocuments(result)
	return result, nil
}

// ListApprovedExpiring возвращает принятые документы с датой истечения в [from, to].
func (r *documentRepositoryInMemory) ListApprovedExpiring(from, to time.Time) ([]domain.ClientDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ClientDocument, 0)
	for _, document := range r.items {
		if document.Status != domain.DocumentStatusApproved || document.ExpirationDate.IsZero() {
			continue
		}
		if document.ExpirationDate.Before(from) || document.ExpirationDate.After(to) {
			continue
		}
		result = append(result, document)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ExpirationDate.Equal(result[j].ExpirationDate) {
			return result[i].ExpirationDate.Before(result[j].ExpirationDate)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// ApprovedCategoryIDs возвращает категории с хотя бы одним принятым документом клиента.
func (r *documentRepositoryInMemory) ApprovedCategoryIDs(clientID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, document := range r.items {
		if document.ClientID == clientID && document.Status == domain.DocumentStatusApproved {
			seen[document.CategoryID] = struct{}{}
		}
	}

	result := make([]string, 0, len(seen))
	for categoryID := range seen {
		result = append(result, categoryID)
	}
	sort.Strings(result)
	return result, nil
}

// Save применяет обновления к документу с учётом optimistic locking.
func (r *documentRepositoryInMemory) Save(document domain.ClientDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[document.ID]
	if !ok {
		return fmt.Errorf("document %s: %w", document.ID, domain.ErrNotFound)
	}
	if existing.Version != document.Version {
		return fmt.Errorf("document %s: %w", document.ID, domain.ErrVersionConflict)
	}

	document.Version++
	r.items[document.ID] = document
	return nil
}

// MarkExpired переводит просроченные документы в expired и возвращает их идентификаторы.
func (r *documentRepositoryInMemory) MarkExpired(today time.Time) ([]string, error) {
	today = domain.DateOnly(today)

	r.mu.Lock()
	defer r.mu.Unlock()

	expired := make([]string, 0)
	for id, document := range r.items {
		if document.Status != domain.DocumentStatusPending && document.Status != domain.DocumentStatusApproved {
			continue
		}
		if document.ExpirationDate.IsZero() || !document.ExpirationDate.Before(today) {
			continue
		}

		document.Status = domain.DocumentStatusExpired
		document.Version++
		r.items[id] = document
		expired = append(expired, id)
	}

	sort.Strings(expired)
	return expired, nil
}

func sortDocuments(documents []domain.ClientDocument) {
	sort.Slice(documents, func(i, j int) bool {
		if !documents[i].CreatedAt.Equal(documents[j].CreatedAt) {
			return documents[i].CreatedAt.After(documents[j].CreatedAt)
		}
		return documents[i].ID < documents[j].ID
	})
}

var _ domain.DocumentRepository = (*documentRepositoryInMemory)(nil)
