// Package stepplan управляет индивидуальными планами этапов таможенного
// оформления: какие этапы каталога назначены клиенту, в каком порядке и
// какие из них активны.
package stepplan

import (
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// Service описывает операции над планом этапов клиента.
// Мутации плана одного клиента сериализует вызывающая сторона.
type Service interface {
	// GetPlan возвращает план клиента, при необходимости создавая
	// назначения обязательных этапов на сентинельных позициях.
	GetPlan(clientID string) ([]domain.PlanEntry, error)
	// Toggle добавляет необязательный этап в план или убирает его из плана.
	Toggle(clientID, stepID string) (domain.ToggleResult, error)
	// Reorder присваивает назначениям позиции 1..n по порядку входного списка.
	Reorder(clientID string, orderedStepIDs []string) error
	// BulkAssign заменяет необязательную часть плана по режиму назначения.
	BulkAssign(clientID string, mode domain.AssignMode) error
	// UpdateAssignment частично обновляет позицию и активность назначения.
	UpdateAssignment(clientID, stepID string, order *uint, active *bool) error
}

type service struct {
	steps       domain.StepRepository
	assignments domain.StepAssignmentRepository
	logger      *log.Entry
}

// NewService создаёт рабочую реализацию плана этапов.
func NewService(steps domain.StepRepository, assignments domain.StepAssignmentRepository, logger *log.Entry) Service {
	if logger == nil {
		logger = log.New().WithField("component", "stepplan")
	}
	return &service{
		steps:       steps,
		assignments: assignments,
		logger:      logger,
	}
}

// GetPlan возвращает план клиента по возрастанию позиции; равные позиции
// упорядочиваются по номеру этапа. Отсутствующие назначения обязательных
// этапов создаются перед чтением.
func (s *service) GetPlan(clientID string) ([]domain.PlanEntry, error) {
	if clientID == "" {
		return nil, domain.ErrClientRequired
	}

	catalog, err := s.steps.ListAll()
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	byID := make(map[string]domain.Step, len(catalog))
	for _, step := range catalog {
		byID[step.ID] = step
	}

	created, err := s.ensurePinned(clientID, catalog)
	if err != nil {
		return nil, err
	}
	if created > 0 {
		s.logger.WithFields(log.Fields{
			"client_id": clientID,
			"created":   created,
		}).Info("pinned steps provisioned for client plan")
	}

	assignments, err := s.assignments.ListByClient(clientID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	plan := make([]domain.PlanEntry, 0, len(assignments))
	for _, assignment := range assignments {
		step, ok := byID[assignment.StepID]
		if !ok {
			// Назначение на этап, удалённый из каталога, в план не попадает.
			s.logger.WithFields(log.Fields{
				"client_id": clientID,
				"step_id":   assignment.StepID,
			}).Warn("assignment references a missing catalog step")
			continue
		}
		plan = append(plan, domain.PlanEntry{Step: step, Order: assignment.Order, Active: assignment.Active})
	}

	sort.SliceStable(plan, func(i, j int) bool {
		if plan[i].Order != plan[j].Order {
			return plan[i].Order < plan[j].Order
		}
		return plan[i].Step.Number < plan[j].Step.Number
	})
	return plan, nil
}

// Toggle переключает необязательный этап: существующее назначение удаляется,
// отсутствующее создаётся с позицией, равной номеру этапа.
func (s *service) Toggle(clientID, stepID string) (domain.ToggleResult, error) {
	if clientID == "" {
		return "", domain.ErrClientRequired
	}
	if stepID == "" {
		return "", fmt.Errorf("%w: step id is required", domain.ErrValidation)
	}

	step, err := s.steps.Get(stepID)
	if err != nil {
		return "", fmt.Errorf("get step: %w", err)
	}
	if step.Pinned {
		return "", domain.ErrImmutableStep
	}

	_, err = s.assignments.Get(clientID, stepID)
	switch {
	case err == nil:
		if err := s.assignments.Delete(clientID, stepID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("delete assignment: %w", err)
		}
		s.logger.WithFields(log.Fields{
			"client_id":   clientID,
			"step_number": step.Number,
		}).Info("step removed from client plan")
		return domain.ToggleRemoved, nil
	case errors.Is(err, domain.ErrNotFound):
		assignment := domain.ClientStepAssignment{
			ClientID:  clientID,
			StepID:    stepID,
			Order:     defaultOrder(step),
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.assignments.Create(assignment); err != nil {
			return "", fmt.Errorf("create assignment: %w", err)
		}
		s.logger.WithFields(log.Fields{
			"client_id":   clientID,
			"step_number": step.Number,
		}).Info("step added to client plan")
		return domain.ToggleAdded, nil
	default:
		return "", fmt.Errorf("get assignment: %w", err)
	}
}

// Reorder присваивает позиции 1..n по порядку входного списка. Позиция
// соответствует месту идентификатора во входе: пропущенные записи позицию
// не освобождают.
func (s *service) Reorder(clientID string, orderedStepIDs []string) error {
	if clientID == "" {
		return domain.ErrClientRequired
	}
	if len(orderedStepIDs) == 0 {
		return fmt.Errorf("%w: ordered step ids are required", domain.ErrValidation)
	}

	catalog, err := s.steps.ListAll()
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}
	byID := make(map[string]domain.Step, len(catalog))
	for _, step := range catalog {
		byID[step.ID] = step
	}

	updated := 0
	for index, stepID := range orderedStepIDs {
		position := uint(index + 1)

		assignment, err := s.assignments.Get(clientID, stepID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("get assignment: %w", err)
		}
		// Обязательные этапы остаются на сентинельных позициях.
		if step, ok := byID[stepID]; ok && step.Pinned {
			continue
		}
		if assignment.Order == position {
			continue
		}
		assignment.Order = position
		if err := s.assignments.Save(assignment); err != nil {
			return fmt.Errorf("save assignment: %w", err)
		}
		updated++
	}

	s.logger.WithFields(log.Fields{
		"client_id": clientID,
		"updated":   updated,
	}).Info("client plan reordered")
	return nil
}

// BulkAssign удаляет все необязательные назначения и, если режим не
// AssignModeNone, создаёт новые в порядке номеров каталога с позициями
// с единицы. Обязательные этапы переживают любой режим.
func (s *service) BulkAssign(clientID string, mode domain.AssignMode) error {
	if clientID == "" {
		return domain.ErrClientRequired
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown assign mode %q", domain.ErrValidation, mode)
	}

	catalog, err := s.steps.ListAll()
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}

	keep := make([]string, 0, 2)
	for _, step := range catalog {
		if step.Pinned {
			keep = append(keep, step.ID)
		}
	}

	removed, err := s.assignments.DeleteExcept(clientID, keep)
	if err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}

	assigned := 0
	if mode != domain.AssignModeNone {
		// Каталог уже отсортирован по номеру, позиции идут подряд.
		for _, step := range catalog {
			if step.Pinned || !matchesMode(step, mode) {
				continue
			}
			assignment := domain.ClientStepAssignment{
				ClientID:  clientID,
				StepID:    step.ID,
				Order:     uint(assigned + 1),
				Active:    true,
				CreatedAt: time.Now().UTC(),
			}
			if err := s.assignments.Create(assignment); err != nil {
				return fmt.Errorf("create assignment: %w", err)
			}
			assigned++
		}
	}

	if _, err := s.ensurePinned(clientID, catalog); err != nil {
		return err
	}

	s.logger.WithFields(log.Fields{
		"client_id": clientID,
		"mode":      mode,
		"assigned":  assigned,
		"removed":   removed,
	}).Info("client plan bulk assigned")
	return nil
}

// UpdateAssignment применяет частичное обновление: меняются только переданные
// поля. Позиция обязательного этапа и его отключение запрещены.
func (s *service) UpdateAssignment(clientID, stepID string, order *uint, active *bool) error {
	if clientID == "" {
		return domain.ErrClientRequired
	}
	if stepID == "" {
		return fmt.Errorf("%w: step id is required", domain.ErrValidation)
	}

	assignment, err := s.assignments.Get(clientID, stepID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotAssigned
	}
	if err != nil {
		return fmt.Errorf("get assignment: %w", err)
	}

	step, err := s.steps.Get(stepID)
	if err != nil {
		return fmt.Errorf("get step: %w", err)
	}
	if step.Pinned {
		if order != nil {
			return domain.ErrImmutableStep
		}
		if active != nil && !*active {
			return domain.ErrImmutableStep
		}
	}

	if order == nil && active == nil {
		return nil
	}
	if order != nil {
		assignment.Order = *order
	}
	if active != nil {
		assignment.Active = *active
	}
	if err := s.assignments.Save(assignment); err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"client_id": clientID,
		"step_id":   stepID,
	}).Debug("step assignment updated")
	return nil
}

// ensurePinned гарантирует назначения обязательных этапов: первый по номеру
// каталога на позиции StepOrderMin, остальные на StepOrderMax.
func (s *service) ensurePinned(clientID string, catalog []domain.Step) (int, error) {
	pinned := make([]domain.Step, 0, 2)
	for _, step := range catalog {
		if step.Pinned {
			pinned = append(pinned, step)
		}
	}
	if len(pinned) == 0 {
		return 0, nil
	}

	first := pinned[0]
	for _, step := range pinned[1:] {
		if step.Number < first.Number {
			first = step
		}
	}

	created := 0
	for _, step := range pinned {
		_, err := s.assignments.Get(clientID, step.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return created, fmt.Errorf("get assignment: %w", err)
		}

		position := domain.StepOrderMax
		if step.ID == first.ID {
			position = domain.StepOrderMin
		}
		assignment := domain.ClientStepAssignment{
			ClientID:  clientID,
			StepID:    step.ID,
			Order:     position,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.assignments.Create(assignment); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				continue
			}
			return created, fmt.Errorf("create pinned assignment: %w", err)
		}
		created++
	}
	return created, nil
}

// defaultOrder выбирает стартовую позицию нового назначения по номеру этапа.
func defaultOrder(step domain.Step) uint {
	if step.Number > 0 {
		return uint(step.Number)
	}
	return 0
}

// matchesMode проверяет, подпадает ли этап под режим массового назначения.
func matchesMode(step domain.Step, mode domain.AssignMode) bool {
	switch mode {
	case domain.AssignModeInboundOnly:
		return step.AppliesInbound
	case domain.AssignModeOutboundOnly:
		return step.AppliesOutbound
	case domain.AssignModeAll:
		return true
	default:
		return false
	}
}

var _ Service = (*service)(nil)
