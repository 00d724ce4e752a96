package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// stepAssignmentRepositoryInMemory хранит назначения этапов клиентам в памяти.
type stepAssignmentRepositoryInMemory struct {
	mu sync.RWMutex
	// items: clientID -> stepID -> назначение.
	items map[string]map[string]domain.ClientStepAssignment
}

// NewStepAssignmentRepository создаёт in-memory реализацию StepAssignmentRepository.
func NewStepAssignmentRepository() domain.StepAssignmentRepository {
	return &stepAssignmentRepositoryInMemory{
		items: make(map[string]map[string]domain.ClientStepAssignment),
	}
}

// Create сохраняет новое назначение.
func (r *stepAssignmentRepositoryInMemory) Create(assignment domain.ClientStepAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byStep, ok := r.items[assignment.ClientID]
	if !ok {
		byStep = make(map[string]domain.ClientStepAssignment)
		r.items[assignment.ClientID] = byStep
	}
	if _, ok := byStep[assignment.StepID]; ok {
		return fmt.Errorf("assignment %s/%s: %w", assignment.ClientID, assignment.StepID, domain.ErrAlreadyExists)
	}

	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	byStep[assignment.StepID] = assignment
	return nil
}

// Get возвращает назначение по паре (clientID, stepID).
func (r *stepAssignmentRepositoryInMemory) Get(clientID, stepID string) (domain.ClientStepAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	assignment, ok := r.items[clientID][stepID]
	if !ok {
		return domain.ClientStepAssignment{}, fmt.Errorf("assignment %s/%s: %w", clientID, stepID, domain.ErrNotFound)
	}
	return assignment, nil
}

// ListByClient возвращает назначения клиента по возрастанию позиции.
func (r *stepAssignmentRepositoryInMemory) ListByClient(clientID string) ([]domain.ClientStepAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byStep := r.items[clientID]
	result := make([]domain.ClientStepAssignment, 0, len(byStep))
	for _, assignment := range byStep {
		result = append(result, assignment)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].StepID < result[j].StepID
	})

	return result, nil
}

// Save применяет обновления позиции и активности назначения.
func (r *stepAssignmentRepositoryInMemory) Save(assignment domain.ClientStepAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[assignment.ClientID][assignment.StepID]
	if !ok {
		return fmt.Errorf("assignment %s/%s: %w", assignment.ClientID, assignment.StepID, domain.ErrNotFound)
	}

	existing.Order = assignment.Order
	existing.Active = assignment.Active
	r.items[assignment.ClientID][assignment.StepID] = existing
	return nil
}

// Delete удаляет назначение.
func (r *stepAssignmentRepositoryInMemory) Delete(clientID, stepID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[clientID][stepID]; !ok {
		return fmt.Errorf("assignment %s/%s: %w", clientID, stepID, domain.ErrNotFound)
	}

	delete(r.items[clientID], stepID)
	return nil
}

// DeleteExcept удаляет все назначения клиента, кроме перечисленных этапов.
func (r *stepAssignmentRepositoryInMemory) DeleteExcept(clientID string, keepStepIDs []string) (int, error) {
	keep := make(map[string]struct{}, len(keepStepIDs))
	for _, id := range keepStepIDs {
		keep[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for stepID := range r.items[clientID] {
		if _, ok := keep[stepID]; ok {
			continue
		}
		delete(r.items[clientID], stepID)
		removed++
	}

	return removed, nil
}

var _ domain.StepAssignmentRepository = (*stepAssignmentRepositoryInMemory)(nil)
