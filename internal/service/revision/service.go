// Package revision ведёт журнал ручных вмешательств по этапам отслеживания.
// Ревизия с переопределением статуса применяет переход отслеживания
// атомарно с записью в журнал.
package revision

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	"github.com/vladislavdragonenkov/cts/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cts/internal/metrics"
)

// Service описывает операции журнала ревизий.
type Service interface {
	// Record добавляет ревизию по записи отслеживания. Переопределение
	// статуса, отличное от текущего, выполняет переход отслеживания
	// одной атомарной операцией с записью ревизии: недопустимый переход
	// проваливает всю операцию, ревизия не сохраняется.
	Record(trackingID, assignedTo, notes string, occurredAt time.Time, statusOverride *domain.TrackingStatus) (domain.Revision, error)
	// History возвращает ревизии записи от новых к старым.
	History(trackingID string) ([]domain.Revision, error)
}

type service struct {
	trackings domain.TrackingRepository
	revisions domain.RevisionRepository
	outbox    domain.OutboxRepository
	logger    *log.Entry
	metrics   *metrics.ComplianceMetrics
}

// NewService создаёт рабочую реализацию журнала ревизий.
func NewService(
	trackings domain.TrackingRepository,
	revisions domain.RevisionRepository,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) Service {
	if logger == nil {
		logger = log.New().WithField("component", "revision")
	}
	return &service{
		trackings: trackings,
		revisions: revisions,
		outbox:    outbox,
		logger:    logger,
		metrics:   metrics.NewComplianceMetrics(),
	}
}

// NewServiceWithoutMetrics создаёт реализацию без метрик (для тестов).
func NewServiceWithoutMetrics(
	trackings domain.TrackingRepository,
	revisions domain.RevisionRepository,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) Service {
	if logger == nil {
		logger = log.New().WithField("component", "revision")
	}
	return &service{
		trackings: trackings,
		revisions: revisions,
		outbox:    outbox,
		logger:    logger,
	}
}

// Record сохраняет ревизию. Статус ревизии — снимок: переданное
// переопределение или текущий статус отслеживания.
func (s *service) Record(trackingID, assignedTo, notes string, occurredAt time.Time, statusOverride *domain.TrackingStatus) (domain.Revision, error) {
	if trackingID == "" {
		return domain.Revision{}, fmt.Errorf("%w: tracking id is required", domain.ErrValidation)
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return domain.Revision{}, domain.ErrEmptyNotes
	}
	if statusOverride != nil && !statusOverride.Valid() {
		return domain.Revision{}, fmt.Errorf("%w: unknown tracking status %q", domain.ErrValidation, *statusOverride)
	}

	tracking, err := s.trackings.GetByID(trackingID)
	if err != nil {
		return domain.Revision{}, fmt.Errorf("get tracking: %w", err)
	}

	now := time.Now().UTC()
	if occurredAt.IsZero() {
		occurredAt = now
	}

	snapshot := tracking.Status
	if statusOverride != nil {
		snapshot = *statusOverride
	}

	revision := domain.Revision{
		ID:         uuid.NewString(),
		TrackingID: trackingID,
		AssignedTo: assignedTo,
		StepNumber: tracking.StepNumber,
		Notes:      notes,
		Status:     string(snapshot),
		OccurredAt: occurredAt,
		CreatedAt:  now,
	}

	// Переопределение, совпадающее с текущим статусом, перехода не делает.
	if statusOverride == nil || *statusOverride == tracking.Status {
		if err := s.revisions.Append(revision); err != nil {
			return domain.Revision{}, fmt.Errorf("append revision: %w", err)
		}
		s.logger.WithFields(log.Fields{
			"tracking_id": trackingID,
			"revision_id": revision.ID,
		}).Info("revision recorded")
		return revision, nil
	}

	previous := tracking.Status
	if err := tracking.ApplyStatus(*statusOverride, now); err != nil {
		return domain.Revision{}, err
	}

	if err := s.revisions.AppendWithTracking(revision, tracking); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"tracking_id": trackingID,
			"to":          *statusOverride,
		}).Error("failed to record revision with transition")
		return domain.Revision{}, fmt.Errorf("append revision with tracking: %w", err)
	}
	tracking.Version++

	if s.metrics != nil {
		s.metrics.RecordTrackingTransition(string(tracking.Status))
	}
	s.emitStatusChanged(tracking, previous, revision.ID)
	s.logger.WithFields(log.Fields{
		"tracking_id": trackingID,
		"revision_id": revision.ID,
		"from":        previous,
		"to":          tracking.Status,
	}).Info("revision recorded with status transition")
	return revision, nil
}

// History возвращает журнал записи от новых к старым.
func (s *service) History(trackingID string) ([]domain.Revision, error) {
	if trackingID == "" {
		return nil, fmt.Errorf("%w: tracking id is required", domain.ErrValidation)
	}

	revisions, err := s.revisions.ListByTracking(trackingID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return revisions, nil
}

// emitStatusChanged ставит событие смены статуса в outbox.
func (s *service) emitStatusChanged(tracking domain.ShipmentTracking, previous domain.TrackingStatus, revisionID string) {
	payload := map[string]interface{}{
		"tracking_id": tracking.ID,
		"shipment_id": tracking.ShipmentID,
		"step_number": tracking.StepNumber,
		"from":        string(previous),
		"to":          string(tracking.Status),
		"revision_id": revisionID,
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
