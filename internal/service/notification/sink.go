// Package notification создаёт и обслуживает уведомления комплаенса.
// Создание идемпотентно: на пару (тип, субъект) существует не более одного
// уведомления, тексты подставляются из таблиц правил.
package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	"github.com/vladislavdragonenkov/cts/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cts/internal/metrics"
	"github.com/vladislavdragonenkov/cts/internal/rules"
)

// Sink принимает уведомления от движка комплаенса и других производителей.
type Sink interface {
	// GetOrCreate возвращает уведомление по ключу (тип, субъект), создавая
	// его при отсутствии. Заголовок и текст рендерятся из шаблона только
	// при создании; у существующей записи они не перезаписываются.
	// Второй результат — признак того, что запись создана этим вызовом.
	GetOrCreate(notificationType domain.NotificationType, subject domain.SubjectRef, priority domain.Priority, vars rules.NotificationVars) (domain.Notification, bool, error)
	// MarkRead помечает уведомление прочитанным. Повторный вызов не ошибка.
	MarkRead(id string) error
	// Unread возвращает непрочитанные уведомления от новых к старым.
	Unread(limit int) ([]domain.Notification, error)
}

type sink struct {
	notifications domain.NotificationRepository
	tables        *rules.Tables
	outbox        domain.OutboxRepository
	logger        *log.Entry
	metrics       *metrics.ComplianceMetrics
}

// NewSink создаёт рабочую реализацию приёмника уведомлений.
func NewSink(
	notifications domain.NotificationRepository,
	tables *rules.Tables,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) Sink {
	if logger == nil {
		logger = log.New().WithField("component", "notification")
	}
	return &sink{
		notifications: notifications,
		tables:        tables,
		outbox:        outbox,
		logger:        logger,
		metrics:       metrics.NewComplianceMetrics(),
	}
}

// NewSinkWithoutMetrics создаёт реализацию без метрик (для тестов).
func NewSinkWithoutMetrics(
	notifications domain.NotificationRepository,
	tables *rules.Tables,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) Sink {
	if logger == nil {
		logger = log.New().WithField("component", "notification")
	}
	return &sink{
		notifications: notifications,
		tables:        tables,
		outbox:        outbox,
		logger:        logger,
	}
}

// GetOrCreate рендерит текст уведомления и атомарно сохраняет его по ключу
// (тип, субъект). Событие в outbox ставится только для созданной записи.
func (s *sink) GetOrCreate(notificationType domain.NotificationType, subject domain.SubjectRef, priority domain.Priority, vars rules.NotificationVars) (domain.Notification, bool, error) {
	if !subject.Kind.Valid() {
		return domain.Notification{}, false, fmt.Errorf("%w: unknown subject kind %q", domain.ErrValidation, subject.Kind)
	}
	if subject.ID == "" {
		return domain.Notification{}, false, fmt.Errorf("%w: subject id is required", domain.ErrValidation)
	}
	if !priority.Valid() {
		return domain.Notification{}, false, fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, priority)
	}

	title, message, err := s.tables.NotificationText(notificationType, vars)
	if err != nil {
		return domain.Notification{}, false, fmt.Errorf("render notification text: %w", err)
	}

	notification := domain.Notification{
		ID:        uuid.NewString(),
		Type:      notificationType,
		Subject:   subject,
		Title:     title,
		Message:   message,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}

	stored, created, err := s.notifications.GetOrCreate(notification)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"type":       notificationType,
			"subject_id": subject.ID,
		}).Error("failed to get or create notification")
		return domain.Notification{}, false, fmt.Errorf("get or create notification: %w", err)
	}

	if !created {
		if s.metrics != nil {
			s.metrics.RecordNotificationRepeated()
		}
		return stored, false, nil
	}

	s.emitNotificationCreated(stored)
	if s.metrics != nil {
		s.metrics.RecordNotificationCreated()
	}

	s.logger.WithFields(log.Fields{
		"notification_id": stored.ID,
		"type":            stored.Type,
		"subject_kind":    stored.Subject.Kind,
		"subject_id":      stored.Subject.ID,
		"priority":        stored.Priority,
	}).Info("notification created")
	return stored, true, nil
}

// MarkRead помечает уведомление прочитанным текущим моментом времени.
func (s *sink) MarkRead(id string) error {
	if id == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	if err := s.notifications.MarkRead(id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	s.logger.WithField("notification_id", id).Debug("notification marked read")
	return nil
}

// Unread возвращает непрочитанные уведомления от новых к старым.
func (s *sink) Unread(limit int) ([]domain.Notification, error) {
	notifications, err := s.notifications.ListUnread(limit)
	if err != nil {
		return nil, fmt.Errorf("list unread notifications: %w", err)
	}
	return notifications, nil
}

// emitNotificationCreated ставит событие о новом уведомлении в outbox.
func (s *sink) emitNotificationCreated(notification domain.Notification) {
	payload := map[string]interface{}{
		"notification_id": notification.ID,
		"type":            string(notification.Type),
		"subject_kind":    string(notification.Subject.Kind),
		"subject_id":      notification.Subject.ID,
		"priority":        string(notification.Priority),
		"ts":              notification.CreatedAt.Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithField("notification_id", notification.ID).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "notification",
		AggregateID:   notification.ID,
		EventType:     string(kafka.EventTypeNotificationCreated),
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithField("notification_id", notification.ID).Error("enqueue event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

var _ Sink = (*sink)(nil)
