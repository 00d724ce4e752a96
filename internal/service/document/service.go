// Package document ведёт досье клиентов: загрузку документов, проверку,
// полноту по обязательным категориям и перевод просроченных документов
// в терминальный статус.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	"github.com/vladislavdragonenkov/cts/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cts/internal/metrics"
)

// Service описывает операции с документами досье.
type Service interface {
	// Upload сохраняет новый документ в статусе pending. Дата истечения
	// при отсутствии выводится из срока действия категории.
	Upload(clientID, categoryID, name, fileName string, fileSize int64, documentDate, expirationDate time.Time) (domain.ClientDocument, error)
	// Review фиксирует решение проверяющего: approved или rejected.
	Review(documentID string, decision domain.DocumentStatus, reviewerID, notes string) (domain.ClientDocument, error)
	// Completeness возвращает процент обязательных категорий, закрытых
	// хотя бы одним принятым документом клиента.
	Completeness(clientID string) (int, error)
	// SweepExpirations переводит просроченные документы в expired
	// и возвращает их количество. Повторный запуск с той же датой
	// ничего не меняет.
	SweepExpirations(today time.Time) (int, error)
}

type service struct {
	documents  domain.DocumentRepository
	categories domain.DocumentCategoryRepository
	outbox     domain.OutboxRepository
	logger     *log.Entry
	metrics    *metrics.ComplianceMetrics
}

// NewService создаёт рабочую реализацию досье.
func NewService(
	documents domain.DocumentRepository,
	categories domain.DocumentCategoryRepository,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) Service {
	if logger == nil {
		logger = log.New().WithField("component", "document")
	}
	return &service{
		documents:  documents,
		categories: categories,
		outbox:     outbox,
		logger:     logger,
		metrics:    metrics.NewComplianceMetrics(),
	}
}

// NewServiceWithoutMetrics создаёт реализацию без метрик (для тестов).
func NewServiceWithoutMetrics(
	documents domain.DocumentRepository,
	categories domain.DocumentCategoryRepository,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) Service {
	if logger == nil {
		logger = log.New().WithField("component", "document")
	}
	return &service{
		documents:  documents,
		categories: categories,
		outbox:     outbox,
		logger:     logger,
	}
}

// Upload сохраняет документ. Календарные даты приводятся к полуночи UTC.
func (s *service) Upload(clientID, categoryID, name, fileName string, fileSize int64, documentDate, expirationDate time.Time) (domain.ClientDocument, error) {
	now := time.Now().UTC()

	document := domain.ClientDocument{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		CategoryID: categoryID,
		Name:       name,
		Status:     domain.DocumentStatusPending,
		FileName:   fileName,
		FileSize:   fileSize,
		CreatedAt:  now,
	}
	if !documentDate.IsZero() {
		document.DocumentDate = domain.DateOnly(documentDate)
	}
	if !expirationDate.IsZero() {
		document.ExpirationDate = domain.DateOnly(expirationDate)
	}

	if errs := document.ValidateInvariants(); len(errs) > 0 {
		return domain.ClientDocument{}, fmt.Errorf("%w: %w", domain.ErrValidation, errors.Join(errs...))
	}

	category, err := s.categories.Get(categoryID)
	if err != nil {
		return domain.ClientDocument{}, fmt.Errorf("get category: %w", err)
	}
	document.ApplyValidityRule(category, now)

	if err := s.documents.Create(document); err != nil {
		return domain.ClientDocument{}, fmt.Errorf("create document: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"client_id":   clientID,
		"category":    category.Code,
		"document_id": document.ID,
	}).Info("document uploaded")
	return document, nil
}

// Review применяет решение проверяющего. Просроченный документ менять
// нельзя; принятие документа с прошедшей датой истечения сразу переводит
// его в expired.
func (s *service) Review(documentID string, decision domain.DocumentStatus, reviewerID, notes string) (domain.ClientDocument, error) {
	if decision != domain.DocumentStatusApproved && decision != domain.DocumentStatusRejected {
		return domain.ClientDocument{}, domain.ErrReviewDecisionInvalid
	}

	document, err := s.documents.Get(documentID)
	if err != nil {
		return domain.ClientDocument{}, fmt.Errorf("get document: %w", err)
	}
	if document.Status == domain.DocumentStatusExpired {
		return domain.ClientDocument{}, domain.ErrTerminalState
	}

	now := time.Now().UTC()
	document.Status = decision
	document.ReviewedBy = reviewerID
	document.ReviewedAt = now
	document.ReviewNotes = notes

	if decision == domain.DocumentStatusApproved && document.ExpiredAsOf(now) {
		document.Status = domain.DocumentStatusExpired
	}

	if err := s.documents.Save(document); err != nil {
		return domain.ClientDocument{}, fmt.Errorf("save document: %w", err)
	}
	document.Version++

	s.logger.WithFields(log.Fields{
		"document_id": documentID,
		"decision":    decision,
		"status":      document.Status,
		"reviewer":    reviewerID,
	}).Info("document reviewed")
	return document, nil
}

// Completeness считает закрытие обязательных категорий принятыми документами.
// Без обязательных категорий досье считается полным.
func (s *service) Completeness(clientID string) (int, error) {
	if clientID == "" {
		return 0, domain.ErrClientRequired
	}

	categories, err := s.categories.ListAll()
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}

	required := make(map[string]struct{})
	for _, category := range categories {
		if category.Required {
			required[category.ID] = struct{}{}
		}
	}
	if len(required) == 0 {
		return 100, nil
	}

	approvedIDs, err := s.documents.ApprovedCategoryIDs(clientID)
	if err != nil {
		return 0, fmt.Errorf("approved categories: %w", err)
	}

	covered := 0
	for _, id := range approvedIDs {
		if _, ok := required[id]; ok {
			covered++
		}
	}

	return 100 * covered / len(required), nil
}

// SweepExpirations переводит просроченные документы в expired и ставит
// событие в outbox по каждому переведённому документу.
func (s *service) SweepExpirations(today time.Time) (int, error) {
	expiredIDs, err := s.documents.MarkExpired(today)
	if err != nil {
		return 0, fmt.Errorf("mark expired: %w", err)
	}
	if len(expiredIDs) == 0 {
		return 0, nil
	}

	for _, id := range expiredIDs {
		s.emitDocumentExpired(id, today)
	}
	if s.metrics != nil {
		s.metrics.RecordDocumentsExpired(len(expiredIDs))
	}

	s.logger.WithFields(log.Fields{
		"expired": len(expiredIDs),
		"today":   domain.DateOnly(today).Format("2006-01-02"),
	}).Info("expired documents swept")
	return len(expiredIDs), nil
}

// emitDocumentExpired ставит событие истечения документа в outbox.
func (s *service) emitDocumentExpired(documentID string, today time.Time) {
	payload := map[string]interface{}{
		"document_id": documentID,
		"as_of":       domain.DateOnly(today).Format("2006-01-02"),
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithField("document_id", documentID).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "document",
		AggregateID:   documentID,
		EventType:     string(kafka.EventTypeDocumentExpired),
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithField("document_id", documentID).Error("enqueue event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

var _ Service = (*service)(nil)
