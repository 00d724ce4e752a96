// Package tracking ведёт журнал продвижения грузов по этапам оформления.
// Статусы этапов образуют конечный автомат; запись появляется в хранилище
// только при первом реальном статусе.
package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	"github.com/vladislavdragonenkov/cts/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cts/internal/metrics"
)

// Service описывает операции отслеживания этапов груза.
type Service interface {
	// ExpectedSteps возвращает ожидаемые этапы груза: индивидуальный план
	// клиента, если в нём есть хотя бы одно активное назначение, иначе
	// каталог, отфильтрованный по направлению операции.
	ExpectedSteps(shipmentID string) ([]domain.Step, error)
	// GetOrCreate возвращает запись отслеживания или несохранённую
	// заготовку в статусе not_started.
	GetOrCreate(shipmentID string, stepNumber int) (domain.ShipmentTracking, error)
	// SetStatus выполняет переход статуса и сохраняет запись.
	SetStatus(shipmentID string, stepNumber int, next domain.TrackingStatus) (domain.ShipmentTracking, error)
	// Progress возвращает сводку продвижения груза по ожидаемым этапам.
	Progress(shipmentID string) (domain.Progress, error)
}

type service struct {
	shipments   domain.ShipmentRepository
	trackings   domain.TrackingRepository
	steps       domain.StepRepository
	assignments domain.StepAssignmentRepository
	outbox      domain.OutboxRepository
	logger      *log.Entry
	metrics     *metrics.ComplianceMetrics
}

// NewService создаёт рабочую реализацию отслеживания.
func NewService(
	shipments domain.ShipmentRepository,
	trackings domain.TrackingRepository,
	steps domain.StepRepository,
	assignments domain.StepAssignmentRepository,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) Service {
	if logger == nil {
		logger = log.New().WithField("component", "tracking")
	}
	return &service{
		shipments:   shipments,
		trackings:   trackings,
		steps:       steps,
		assignments: assignments,
		outbox:      outbox,
		logger:      logger,
		metrics:     metrics.NewComplianceMetrics(),
	}
}

// NewServiceWithoutMetrics создаёт реализацию без метрик (для тестов).
func NewServiceWithoutMetrics(
	shipments domain.ShipmentRepository,
	trackings domain.TrackingRepository,
	steps domain.StepRepository,
	assignments domain.StepAssignmentRepository,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) Service {
	if logger == nil {
		logger = log.New().WithField("component", "tracking")
	}
	return &service{
		shipments:   shipments,
		trackings:   trackings,
		steps:       steps,
		assignments: assignments,
		outbox:      outbox,
		logger:      logger,
	}
}

// ExpectedSteps возвращает этапы, по которым груз должен пройти.
func (s *service) ExpectedSteps(shipmentID string) ([]domain.Step, error) {
	shipment, err := s.shipments.Get(shipmentID)
	if err != nil {
		return nil, fmt.Errorf("get shipment: %w", err)
	}
	return s.expectedForShipment(shipment)
}

func (s *service) expectedForShipment(shipment domain.Shipment) ([]domain.Step, error) {
	assignments, err := s.assignments.ListByClient(shipment.ClientID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	active := make([]domain.ClientStepAssignment, 0, len(assignments))
	for _, assignment := range assignments {
		if assignment.Active {
			active = append(active, assignment)
		}
	}

	catalog, err := s.steps.ListAll()
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}

	// Без активного индивидуального плана действует каталог по направлению.
	if len(active) == 0 {
		expected := make([]domain.Step, 0, len(catalog))
		for _, step := range catalog {
			if step.AppliesTo(shipment.Direction) {
				expected = append(expected, step)
			}
		}
		return expected, nil
	}

	byID := make(map[string]domain.Step, len(catalog))
	for _, step := range catalog {
		byID[step.ID] = step
	}

	type planStep struct {
		step  domain.Step
		order uint
	}
	entries := make([]planStep, 0, len(active))
	for _, assignment := range active {
		step, ok := byID[assignment.StepID]
		if !ok {
			s.logger.WithFields(log.Fields{
				"client_id": shipment.ClientID,
				"step_id":   assignment.StepID,
			}).Warn("assignment references a missing catalog step")
			continue
		}
		entries = append(entries, planStep{step: step, order: assignment.Order})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].order != entries[j].order {
			return entries[i].order < entries[j].order
		}
		return entries[i].step.Number < entries[j].step.Number
	})

	expected := make([]domain.Step, 0, len(entries))
	for _, entry := range entries {
		expected = append(expected, entry.step)
	}
	return expected, nil
}

// GetOrCreate возвращает существующую запись или заготовку not_started.
// Заготовка не сохраняется: хранилище не знает о не начатых этапах.
func (s *service) GetOrCreate(shipmentID string, stepNumber int) (domain.ShipmentTracking, error) {
	if _, err := s.shipments.Get(shipmentID); err != nil {
		return domain.ShipmentTracking{}, fmt.Errorf("get shipment: %w", err)
	}

	tracking, err := s.trackings.Get(shipmentID, stepNumber)
	if err == nil {
		return tracking, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.ShipmentTracking{}, fmt.Errorf("get tracking: %w", err)
	}

	return domain.ShipmentTracking{
		ShipmentID: shipmentID,
		StepNumber: stepNumber,
		Status:     domain.TrackingStatusNotStarted,
	}, nil
}

// SetStatus выполняет переход статуса по таблице допустимых переходов.
// Материализация заготовки считается переходом not_started -> next.
// Конфликты версий разрешаются повторным чтением с exponential backoff.
func (s *service) SetStatus(shipmentID string, stepNumber int, next domain.TrackingStatus) (domain.ShipmentTracking, error) {
	if !next.Valid() {
		return domain.ShipmentTracking{}, fmt.Errorf("%w: unknown tracking status %q", domain.ErrValidation, next)
	}

	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		tracking, err := s.GetOrCreate(shipmentID, stepNumber)
		if err != nil {
			return domain.ShipmentTracking{}, err
		}

		previous := tracking.Status
		now := time.Now().UTC()
		if err := tracking.ApplyStatus(next, now); err != nil {
			return domain.ShipmentTracking{}, err
		}

		if tracking.ID == "" {
			tracking.ID = uuid.NewString()
			tracking.CreatedAt = now
			err = s.trackings.Create(tracking)
			if errors.Is(err, domain.ErrAlreadyExists) {
				// Запись материализовал параллельный писатель, продолжаем по ней.
				continue
			}
		} else {
			err = s.trackings.Save(tracking)
			if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
				s.logger.WithFields(log.Fields{
					"shipment_id": shipmentID,
					"step_number": stepNumber,
					"attempt":     attempt + 1,
				}).Warn("version conflict detected, retrying")
				time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			if err == nil {
				tracking.Version++
			}
		}
		if err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"shipment_id": shipmentID,
				"step_number": stepNumber,
			}).Error("failed to persist tracking status")
			return domain.ShipmentTracking{}, fmt.Errorf("persist tracking: %w", err)
		}

		if s.metrics != nil {
			s.metrics.RecordTrackingTransition(string(next))
		}
		s.emitStatusChanged(tracking, previous)
		s.logger.WithFields(log.Fields{
			"shipment_id": shipmentID,
			"step_number": stepNumber,
			"from":        previous,
			"to":          next,
		}).Info("tracking status changed")
		return tracking, nil
	}

	return domain.ShipmentTracking{}, domain.ErrVersionConflict
}

// Progress строит сводку по ожидаемым этапам груза.
func (s *service) Progress(shipmentID string) (domain.Progress, error) {
	shipment, err := s.shipments.Get(shipmentID)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("get shipment: %w", err)
	}

	expected, err := s.expectedForShipment(shipment)
	if err != nil {
		return domain.Progress{}, err
	}

	rows, err := s.trackings.ListByShipment(shipmentID)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("list trackings: %w", err)
	}
	byNumber := make(map[int]domain.ShipmentTracking, len(rows))
	for _, row := range rows {
		byNumber[row.StepNumber] = row
	}

	progress := domain.Progress{TotalCount: len(expected)}
	for i := range expected {
		row, ok := byNumber[expected[i].Number]
		if ok && row.Status == domain.TrackingStatusCompleted {
			progress.CompletedCount++
			continue
		}
		if progress.CurrentStep == nil {
			step := expected[i]
			progress.CurrentStep = &step
		}
	}
	if progress.TotalCount > 0 {
		progress.Percent = int(math.Round(float64(progress.CompletedCount) / float64(progress.TotalCount) * 100))
	}
	return progress, nil
}

// emitStatusChanged ставит событие смены статуса в outbox.
func (s *service) emitStatusChanged(tracking domain.ShipmentTracking, previous domain.TrackingStatus) {
	payload := map[string]interface{}{
		"tracking_id": tracking.ID,
		"shipment_id": tracking.ShipmentID,
		"step_number": tracking.StepNumber,
		"from":        string(previous),
		"to":          string(tracking.Status),
		"ts":          tracking.UpdatedAt.Format(time.RFC3339Nano),
	}
	if !tracking.FinishedAt.IsZero() {
		payload["finished_at"] = tracking.FinishedAt.Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithField("tracking_id", tracking.ID).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "tracking",
		AggregateID:   tracking.ID,
		EventType:     string(kafka.EventTypeTrackingStatusChanged),
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithField("tracking_id", tracking.ID).Error("enqueue event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

var _ Service = (*service)(nil)
