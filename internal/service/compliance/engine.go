// Package compliance выполняет регламентные сверки: перевод просроченных
// документов, пересчёт полноты досье и проверку клиентов по внешним спискам.
// Джобы идемпотентны и рассчитаны на периодический запуск планировщиком
// или внешним cron через compliance-run.
package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	"github.com/vladislavdragonenkov/cts/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cts/internal/metrics"
	"github.com/vladislavdragonenkov/cts/internal/rules"
	"github.com/vladislavdragonenkov/cts/internal/service/document"
	"github.com/vladislavdragonenkov/cts/internal/service/notification"
)

const (
	jobExpirationSweep = "expiration_sweep"
	jobCompleteness    = "completeness"
	jobVerification    = "verification"

	// highPriorityDays — остаток срока, начиная с которого предупреждение
	// об истечении получает высокий приоритет.
	highPriorityDays = 7
)

// ExpirationReport — итог прохода по срокам действия документов.
type ExpirationReport struct {
	ExpiredMarked        int `json:"expired_marked"`
	ExpiringSoon         int `json:"expiring_soon"`
	NotificationsCreated int `json:"notifications_created"`
	Skipped              int `json:"skipped"`
}

// CompletenessReport — итог пересчёта полноты досье.
type CompletenessReport struct {
	NewlyComplete   int `json:"newly_complete"`
	NewlyIncomplete int `json:"newly_incomplete"`
	TotalClients    int `json:"total_clients"`
}

// VerificationReport — итог проверки клиентов по внешним спискам.
type VerificationReport struct {
	Verified         int `json:"verified"`
	FromCache        int `json:"from_cache"`
	InDefinitiveList int `json:"in_definitive_list"`
	InPresumedList   int `json:"in_presumed_list"`
	Malformed        int `json:"malformed"`
	Errors           int `json:"errors"`
}

// Engine — три независимых регламентных джоба комплаенса.
// Ошибка возвращается только при отказе инфраструктуры; сбои по отдельным
// сущностям учитываются в отчёте и не прерывают джоб.
type Engine interface {
	// RunJobA переводит просроченные документы и создаёт уведомления
	// об истечении. Нулевое today трактуется как текущая дата.
	RunJobA(ctx context.Context, today time.Time) (ExpirationReport, error)
	// RunJobB пересчитывает полноту досье видимых клиентов и сохраняет
	// только изменившиеся записи.
	RunJobB(ctx context.Context) (CompletenessReport, error)
	// RunJobC проверяет видимых клиентов с заполненным налоговым
	// идентификатором по внешним спискам и пишет строку истории
	// по каждому, включая ошибки.
	RunJobC(ctx context.Context) (VerificationReport, error)
}

// Config задаёт настраиваемые параметры движка.
type Config struct {
	// WarningWindowDays — окно предупреждения об истечении в днях.
	WarningWindowDays int
	// VerifyTimeout — предел ожидания одного обращения к внешнему сервису.
	VerifyTimeout time.Duration
	// MaxParallel — ограничение параллелизма пересчёта досье.
	MaxParallel int
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		WarningWindowDays: 30,
		VerifyTimeout:     30 * time.Second,
		MaxParallel:       8,
	}
}

func (c Config) normalized() Config {
	if c.WarningWindowDays <= 0 {
		c.WarningWindowDays = 30
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = 30 * time.Second
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 8
	}
	return c
}

type engine struct {
	documents     document.Service
	documentStore domain.DocumentRepository
	clients       domain.ClientRepository
	verifications domain.VerificationRepository
	verifier      domain.ListVerifier
	sink          notification.Sink
	outbox        domain.OutboxRepository
	config        Config
	logger        *log.Entry
	metrics       *metrics.ComplianceMetrics
}

// NewEngine создаёт рабочую реализацию движка комплаенса.
func NewEngine(
	documents document.Service,
	documentStore domain.DocumentRepository,
	clients domain.ClientRepository,
	verifications domain.VerificationRepository,
	verifier domain.ListVerifier,
	sink notification.Sink,
	outbox domain.OutboxRepository,
	config Config,
	logger *log.Entry,
) Engine {
	if logger == nil {
		logger = log.New().WithField("component", "compliance")
	}
	return &engine{
		documents:     documents,
		documentStore: documentStore,
		clients:       clients,
		verifications: verifications,
		verifier:      verifier,
		sink:          sink,
		outbox:        outbox,
		config:        config.normalized(),
		logger:        logger,
		metrics:       metrics.NewComplianceMetrics(),
	}
}

// NewEngineWithoutMetrics создаёт реализацию без метрик (для тестов).
func NewEngineWithoutMetrics(
	documents document.Service,
	documentStore domain.DocumentRepository,
	clients domain.ClientRepository,
	verifications domain.VerificationRepository,
	verifier domain.ListVerifier,
	sink notification.Sink,
	outbox domain.OutboxRepository,
	config Config,
	logger *log.Entry,
) Engine {
	if logger == nil {
		logger = log.New().WithField("component", "compliance")
	}
	return &engine{
		documents:     documents,
		documentStore: documentStore,
		clients:       clients,
		verifications: verifications,
		verifier:      verifier,
		sink:          sink,
		outbox:        outbox,
		config:        config.normalized(),
		logger:        logger,
	}
}

// RunJobA переводит просроченные документы и рассылает уведомления
// об истечении сроков.
func (e *engine) RunJobA(ctx context.Context, today time.Time) (ExpirationReport, error) {
	if today.IsZero() {
		today = time.Now().UTC()
	}

	started := time.Now()
	if e.metrics != nil {
		e.metrics.RecordJobStarted(jobExpirationSweep)
	}

	report, err := e.runExpirationSweep(ctx, today)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordJobFailed(jobExpirationSweep)
			e.metrics.RecordJobFinished(jobExpirationSweep, time.Since(started))
		}
		e.logger.WithError(err).Error("expiration sweep failed")
		return report, err
	}

	if e.metrics != nil {
		e.metrics.RecordJobFinished(jobExpirationSweep, time.Since(started))
	}
	e.logger.WithFields(log.Fields{
		"expired_marked":        report.ExpiredMarked,
		"expiring_soon":         report.ExpiringSoon,
		"notifications_created": report.NotificationsCreated,
		"skipped":               report.Skipped,
	}).Info("expiration sweep finished")
	return report, nil
}

func (e *engine) runExpirationSweep(ctx context.Context, today time.Time) (ExpirationReport, error) {
	var report ExpirationReport

	expiredMarked, err := e.documents.SweepExpirations(today)
	if err != nil {
		return report, fmt.Errorf("sweep expirations: %w", err)
	}
	report.ExpiredMarked = expiredMarked

	from := domain.DateOnly(today)
	to := from.AddDate(0, 0, e.config.WarningWindowDays)
	expiring, err := e.documentStore.ListApprovedExpiring(from, to)
	if err != nil {
		return report, fmt.Errorf("list approved expiring: %w", err)
	}
	report.ExpiringSoon = len(expiring)

	for _, doc := range expiring {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		daysLeft := int(doc.ExpirationDate.Sub(from).Hours() / 24)
		priority := domain.PriorityMedium
		if daysLeft <= highPriorityDays {
			priority = domain.PriorityHigh
		}

		created, err := e.notifyDocument(domain.NotificationDocumentExpiring, doc, priority, daysLeft)
		if err != nil {
			report.Skipped++
			e.logger.WithError(err).WithField("document_id", doc.ID).Warn("skip expiring notification")
			continue
		}
		if created {
			report.NotificationsCreated++
		}
	}

	expired, err := e.documentStore.ListByStatus(domain.DocumentStatusExpired)
	if err != nil {
		return report, fmt.Errorf("list expired documents: %w", err)
	}
	for _, doc := range expired {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		created, err := e.notifyDocument(domain.NotificationDocumentExpired, doc, domain.PriorityUrgent, 0)
		if err != nil {
			report.Skipped++
			e.logger.WithError(err).WithField("document_id", doc.ID).Warn("skip expired notification")
			continue
		}
		if created {
			report.NotificationsCreated++
		}
	}

	return report, nil
}

func (e *engine) notifyDocument(notificationType domain.NotificationType, doc domain.ClientDocument, priority domain.Priority, daysLeft int) (bool, error) {
	client, err := e.clients.Get(doc.ClientID)
	if err != nil {
		return false, fmt.Errorf("get client %s: %w", doc.ClientID, err)
	}

	_, created, err := e.sink.GetOrCreate(
		notificationType,
		domain.SubjectRef{Kind: domain.SubjectDocument, ID: doc.ID},
		priority,
		rules.NotificationVars{
			Name:    doc.Name,
			Company: client.Company,
			Days:    daysLeft,
			Date:    doc.ExpirationDate,
		},
	)
	if err != nil {
		return false, err
	}
	return created, nil
}

// RunJobB пересчитывает полноту досье видимых клиентов.
func (e *engine) RunJobB(ctx context.Context) (CompletenessReport, error) {
	started := time.Now()
	if e.metrics != nil {
		e.metrics.RecordJobStarted(jobCompleteness)
	}

	report, err := e.runCompleteness(ctx)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordJobFailed(jobCompleteness)
			e.metrics.RecordJobFinished(jobCompleteness, time.Since(started))
		}
		e.logger.WithError(err).Error("completeness reconciliation failed")
		return report, err
	}

	if e.metrics != nil {
		e.metrics.RecordJobFinished(jobCompleteness, time.Since(started))
	}
	e.logger.WithFields(log.Fields{
		"newly_complete":   report.NewlyComplete,
		"newly_incomplete": report.NewlyIncomplete,
		"total_clients":    report.TotalClients,
	}).Info("completeness reconciliation finished")
	return report, nil
}

func (e *engine) runCompleteness(ctx context.Context) (CompletenessReport, error) {
	var report CompletenessReport

	clients, err := e.clients.ListVisible()
	if err != nil {
		return report, fmt.Errorf("list visible clients: %w", err)
	}
	report.TotalClients = len(clients)

	var mu sync.Mutex
	e.forEachParallel(ctx, len(clients), func(index int) {
		client := clients[index]

		percent, err := e.documents.Completeness(client.ID)
		if err != nil {
			e.logger.WithError(err).WithField("client_id", client.ID).Warn("completeness recompute failed")
			return
		}

		isComplete := percent == 100
		if client.DossierComplete == isComplete {
			return
		}

		client.DossierComplete = isComplete
		client.LastVerifiedAt = time.Now().UTC()
		if err := e.clients.Save(client); err != nil {
			e.logger.WithError(err).WithField("client_id", client.ID).Warn("save dossier state failed")
			return
		}

		if e.metrics != nil {
			e.metrics.RecordDossierTransition()
		}
		mu.Lock()
		if isComplete {
			report.NewlyComplete++
		} else {
			report.NewlyIncomplete++
		}
		mu.Unlock()

		e.logger.WithFields(log.Fields{
			"client_id": client.ID,
			"complete":  isComplete,
		}).Info("client dossier completeness changed")
	})

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// forEachParallel выполняет fn по каждому индексу с ограничением параллелизма.
func (e *engine) forEachParallel(ctx context.Context, size int, fn func(index int)) {
	if size == 0 {
		return
	}

	limit := e.config.MaxParallel
	if limit > size {
		limit = size
	}

	semaphore := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for idx := 0; idx < size; idx++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}
		go func(index int) {
			defer wg.Done()
			defer func() { <-semaphore }()
			fn(index)
		}(idx)
	}

	wg.Wait()
}

// RunJobC проверяет видимых клиентов по внешним спискам нарушителей.
func (e *engine) RunJobC(ctx context.Context) (VerificationReport, error) {
	started := time.Now()
	if e.metrics != nil {
		e.metrics.RecordJobStarted(jobVerification)
	}

	report, err := e.runVerification(ctx)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordJobFailed(jobVerification)
			e.metrics.RecordJobFinished(jobVerification, time.Since(started))
		}
		e.logger.WithError(err).Error("external list verification failed")
		return report, err
	}

	if e.metrics != nil {
		e.metrics.RecordJobFinished(jobVerification, time.Since(started))
	}
	e.logger.WithFields(log.Fields{
		"verified":           report.Verified,
		"from_cache":         report.FromCache,
		"in_definitive_list": report.InDefinitiveList,
		"in_presumed_list":   report.InPresumedList,
		"malformed":          report.Malformed,
		"errors":             report.Errors,
	}).Info("external list verification finished")
	return report, nil
}

func (e *engine) runVerification(ctx context.Context) (VerificationReport, error) {
	var report VerificationReport

	clients, err := e.clients.ListVisible()
	if err != nil {
		return report, fmt.Errorf("list visible clients: %w", err)
	}

	for _, client := range clients {
		if client.TaxID == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		e.verifyClient(ctx, client, &report)
	}

	return report, nil
}

// verifyClient пишет строку истории проверки независимо от исхода:
// ошибки формата и отказы внешнего сервиса фиксируются строкой error.
func (e *engine) verifyClient(ctx context.Context, client domain.Client, report *VerificationReport) {
	now := time.Now().UTC()
	verification := domain.ExternalListVerification{
		ID:         uuid.NewString(),
		ClientID:   client.ID,
		TaxID:      domain.NormalizeTaxID(client.TaxID),
		Method:     domain.VerificationMethodAutomatic,
		Notes:      "Verificación automática semanal - " + now.Format("2006-01-02 15:04"),
		VerifiedAt: now,
	}

	if !domain.ValidTaxID(verification.TaxID) {
		verification.Status = domain.VerificationStatusError
		verification.Notes = fmt.Sprintf("RFC con formato inválido: %s", verification.TaxID)
		report.Malformed++
		e.logger.WithFields(log.Fields{
			"client_id": client.ID,
			"tax_id":    verification.TaxID,
		}).Warn("malformed tax id, verifier not called")
	} else {
		callCtx, cancel := context.WithTimeout(ctx, e.config.VerifyTimeout)
		result, err := e.verifier.Verify(callCtx, verification.TaxID)
		cancel()

		if err != nil {
			verification.Status = domain.VerificationStatusError
			verification.Notes = fmt.Sprintf("Error de verificación: %v", err)
			report.Errors++
			e.logger.WithError(err).WithFields(log.Fields{
				"client_id": client.ID,
				"tax_id":    verification.TaxID,
			}).Warn("verifier call failed")
		} else {
			verification.InDefinitiveList = result.InDefinitiveList
			verification.InPresumedList = result.InPresumedList
			verification.FromCache = result.FromCache
			verification.Status = domain.DeriveVerificationStatus(result.InDefinitiveList, result.InPresumedList)

			if result.FromCache {
				report.FromCache++
				if e.metrics != nil {
					e.metrics.RecordVerificationCacheHit()
				}
			} else {
				report.Verified++
			}
			if result.InDefinitiveList {
				report.InDefinitiveList++
			}
			if result.InPresumedList {
				report.InPresumedList++
			}
		}
	}

	if err := e.verifications.Append(verification); err != nil {
		report.Errors++
		e.logger.WithError(err).WithField("client_id", client.ID).Error("append verification failed")
		return
	}
	if e.metrics != nil {
		e.metrics.RecordVerification(string(verification.Status))
	}
	e.emitVerificationRecorded(verification)
}

// emitVerificationRecorded ставит событие о записи проверки в outbox.
func (e *engine) emitVerificationRecorded(verification domain.ExternalListVerification) {
	payload := map[string]interface{}{
		"verification_id":    verification.ID,
		"client_id":          verification.ClientID,
		"tax_id":             verification.TaxID,
		"status":             string(verification.Status),
		"in_definitive_list": verification.InDefinitiveList,
		"in_presumed_list":   verification.InPresumedList,
		"from_cache":         verification.FromCache,
		"method":             string(verification.Method),
		"ts":                 verification.VerifiedAt.Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.WithError(err).WithField("verification_id", verification.ID).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "verification",
		AggregateID:   verification.ID,
		EventType:     string(kafka.EventTypeVerificationRecorded),
		Payload:       data,
	}
	if _, err := e.outbox.Enqueue(msg); err != nil {
		e.logger.WithError(err).WithField("verification_id", verification.ID).Error("enqueue event failed")
		return
	}
	if e.metrics != nil {
		e.metrics.RecordOutboxEvent()
	}
}

var _ Engine = (*engine)(nil)
