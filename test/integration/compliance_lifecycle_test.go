package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	"github.com/vladislavdragonenkov/cts/internal/rules"
	"github.com/vladislavdragonenkov/cts/internal/service/compliance"
	"github.com/vladislavdragonenkov/cts/internal/service/document"
	"github.com/vladislavdragonenkov/cts/internal/service/notification"
	"github.com/vladislavdragonenkov/cts/internal/service/revision"
	"github.com/vladislavdragonenkov/cts/internal/service/satlist"
	"github.com/vladislavdragonenkov/cts/internal/service/stepplan"
	"github.com/vladislavdragonenkov/cts/internal/service/tracking"
	"github.com/vladislavdragonenkov/cts/internal/storage/memory"
)

// ComplianceLifecycleTestSuite тестирует сквозные сценарии сопровождения:
// отслеживание этапов, индивидуальные планы, ревизии и регламентные сверки.
type ComplianceLifecycleTestSuite struct {
	suite.Suite

	clients       domain.ClientRepository
	shipments     domain.ShipmentRepository
	trackings     domain.TrackingRepository
	steps         domain.StepRepository
	assignments   domain.StepAssignmentRepository
	documents     domain.DocumentRepository
	categories    domain.DocumentCategoryRepository
	notifications domain.NotificationRepository
	verifications domain.VerificationRepository
	outbox        domain.OutboxRepository

	plan      stepplan.Service
	tracking  tracking.Service
	revisions revision.Service
	dossier   document.Service
	sink      notification.Sink
	verifier  *satlist.MockVerifier
	engine    compliance.Engine

	logger *log.Entry
}

func (suite *ComplianceLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	suite.logger = baseLogger.WithField("component", "integration-test")

	suite.clients = memory.NewClientRepository()
	suite.shipments = memory.NewShipmentRepository()
	suite.trackings = memory.NewTrackingRepository()
	suite.steps = memory.NewStepRepository()
	suite.assignments = memory.NewStepAssignmentRepository()
	suite.documents = memory.NewDocumentRepository()
	suite.categories = memory.NewCategoryRepository()
	suite.notifications = memory.NewNotificationRepository()
	suite.verifications = memory.NewVerificationRepository()
	suite.outbox = memory.NewOutboxRepository()
	revisionStore := memory.NewRevisionRepository(suite.trackings)

	tables, err := rules.Load()
	require.NoError(suite.T(), err)

	suite.plan = stepplan.NewService(suite.steps, suite.assignments, suite.logger)
	suite.tracking = tracking.NewServiceWithoutMetrics(
		suite.shipments,
		suite.trackings,
		suite.steps,
		suite.assignments,
		suite.outbox,
		suite.logger,
	)
	suite.revisions = revision.NewServiceWithoutMetrics(suite.trackings, revisionStore, suite.outbox, suite.logger)
	suite.dossier = document.NewServiceWithoutMetrics(suite.documents, suite.categories, suite.outbox, suite.logger)
	suite.sink = notification.NewSinkWithoutMetrics(suite.notifications, tables, suite.outbox, suite.logger)

	suite.verifier = satlist.NewMockVerifier()
	suite.engine = compliance.NewEngineWithoutMetrics(
		suite.dossier,
		suite.documents,
		suite.clients,
		suite.verifications,
		suite.verifier,
		suite.sink,
		suite.outbox,
		compliance.DefaultConfig(),
		suite.logger,
	)

	suite.seedCatalog()
}

func (suite *ComplianceLifecycleTestSuite) TestInboundShipmentTracking() {
	client := suite.registerClient("client-importer", "IMP680524P76")
	shipment := suite.createShipment(client.ID, domain.DirectionInbound)

	// 1. Без индивидуального плана действует каталог по направлению
	expected, err := suite.tracking.ExpectedSteps(shipment.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), expected, 5)
	require.Equal(suite.T(), 1, expected[0].Number)
	for _, step := range expected {
		require.NotEqual(suite.T(), "step-customs-outbound", step.ID)
	}

	// 2. Не начатый этап — несохранённая заготовка
	blank, err := suite.tracking.GetOrCreate(shipment.ID, 2)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.TrackingStatusNotStarted, blank.Status)
	require.Empty(suite.T(), blank.ID)
	_, err = suite.trackings.Get(shipment.ID, 2)
	require.ErrorIs(suite.T(), err, domain.ErrNotFound)

	// 3. Прогон этапа по конечному автомату
	_, err = suite.tracking.SetStatus(shipment.ID, 2, domain.TrackingStatusPending)
	require.NoError(suite.T(), err)
	_, err = suite.tracking.SetStatus(shipment.ID, 2, domain.TrackingStatusInProgress)
	require.NoError(suite.T(), err)
	tracked, err := suite.tracking.SetStatus(shipment.ID, 2, domain.TrackingStatusCompleted)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.TrackingStatusCompleted, tracked.Status)
	require.False(suite.T(), tracked.FinishedAt.IsZero())

	// 4. Повтор завершения не входит в таблицу переходов
	_, err = suite.tracking.SetStatus(shipment.ID, 2, domain.TrackingStatusCompleted)
	require.ErrorIs(suite.T(), err, domain.ErrInvalidTransition)

	// 5. Сводка продвижения
	progress, err := suite.tracking.Progress(shipment.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 5, progress.TotalCount)
	require.Equal(suite.T(), 1, progress.CompletedCount)
	require.Equal(suite.T(), 20, progress.Percent)
	require.NotNil(suite.T(), progress.CurrentStep)
	require.Equal(suite.T(), 1, progress.CurrentStep.Number)

	// 6. Каждый переход оставил событие в outbox
	stats, err := suite.outbox.Stats()
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 3, stats.PendingCount)
}

func (suite *ComplianceLifecycleTestSuite) TestClientPlanOverridesCatalog() {
	client := suite.registerClient("client-custom", "CUS680524P76")
	shipment := suite.createShipment(client.ID, domain.DirectionOutbound)

	// 1. До первого обращения к плану действует каталог: outbound-этапы
	expected, err := suite.tracking.ExpectedSteps(shipment.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), expected, 5)

	// 2. Чтение плана создаёт назначения обязательных этапов на сентинельных позициях
	plan, err := suite.plan.GetPlan(client.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), plan, 2)
	require.True(suite.T(), plan[0].Step.Pinned)
	require.Equal(suite.T(), domain.StepOrderMin, plan[0].Order)
	require.Equal(suite.T(), domain.StepOrderMax, plan[1].Order)

	// 3. Появление активного плана отключает каталог
	expected, err = suite.tracking.ExpectedSteps(shipment.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), expected, 2)

	// 4. Необязательные этапы добавляются переключением
	added, err := suite.plan.Toggle(client.ID, "step-docs")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.ToggleAdded, added)
	_, err = suite.plan.Toggle(client.ID, "step-delivery")
	require.NoError(suite.T(), err)

	expected, err = suite.tracking.ExpectedSteps(shipment.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), expected, 4)
	require.Equal(suite.T(), "step-opening", expected[0].ID)
	require.Equal(suite.T(), "step-docs", expected[1].ID)
	require.Equal(suite.T(), "step-delivery", expected[2].ID)
	require.Equal(suite.T(), "step-closing", expected[3].ID)

	// 5. Перестановка задаёт позиции по порядку входного списка
	err = suite.plan.Reorder(client.ID, []string{"step-delivery", "step-docs"})
	require.NoError(suite.T(), err)

	expected, err = suite.tracking.ExpectedSteps(shipment.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "step-opening", expected[0].ID)
	require.Equal(suite.T(), "step-delivery", expected[1].ID)
	require.Equal(suite.T(), "step-docs", expected[2].ID)
	require.Equal(suite.T(), "step-closing", expected[3].ID)

	// 6. Обязательные этапы неизменяемы
	_, err = suite.plan.Toggle(client.ID, "step-opening")
	require.ErrorIs(suite.T(), err, domain.ErrImmutableStep)
	inactive := false
	err = suite.plan.UpdateAssignment(client.ID, "step-closing", nil, &inactive)
	require.ErrorIs(suite.T(), err, domain.ErrImmutableStep)

	// 7. Повторное переключение убирает этап из плана
	removed, err := suite.plan.Toggle(client.ID, "step-docs")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.ToggleRemoved, removed)

	expected, err = suite.tracking.ExpectedSteps(shipment.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), expected, 3)
}

func (suite *ComplianceLifecycleTestSuite) TestRevisionDrivesStatusTransition() {
	client := suite.registerClient("client-revised", "REV680524P76")
	shipment := suite.createShipment(client.ID, domain.DirectionInbound)

	tracked, err := suite.tracking.SetStatus(shipment.ID, 3, domain.TrackingStatusPending)
	require.NoError(suite.T(), err)

	// 1. Ревизия с переопределением статуса выполняет переход
	override := domain.TrackingStatusInProgress
	recorded, err := suite.revisions.Record(tracked.ID, "inspector-lopez", "Inicio de despacho aduanal", time.Time{}, &override)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), string(domain.TrackingStatusInProgress), recorded.Status)

	updated, err := suite.trackings.GetByID(tracked.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.TrackingStatusInProgress, updated.Status)

	// 2. Недопустимое переопределение проваливает операцию целиком
	bad := domain.TrackingStatusPending
	_, err = suite.revisions.Record(tracked.ID, "inspector-lopez", "intento inválido", time.Time{}, &bad)
	require.ErrorIs(suite.T(), err, domain.ErrInvalidTransition)

	history, err := suite.revisions.History(tracked.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), history, 1)

	// 3. Ревизия без переопределения — только запись в журнал
	followUp, err := suite.revisions.Record(tracked.ID, "inspector-diaz", "Documentos recibidos", time.Time{}, nil)
	require.NoError(suite.T(), err)

	unchanged, err := suite.trackings.GetByID(tracked.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.TrackingStatusInProgress, unchanged.Status)

	// 4. Журнал возвращается от новых к старым
	history, err = suite.revisions.History(tracked.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), history, 2)
	require.Equal(suite.T(), followUp.ID, history[0].ID)
	require.Equal(suite.T(), recorded.ID, history[1].ID)
}

func (suite *ComplianceLifecycleTestSuite) TestExpirationSweepJob() {
	ctx := context.Background()
	now := time.Now().UTC()
	client := suite.registerClient("client-dossier", "DOS680524P76")

	category := domain.DocumentCategory{
		ID:       "cat-rfc",
		Code:     "constancia_rfc",
		Name:     "Constancia de situación fiscal",
		Required: true,
		Order:    1,
	}
	require.NoError(suite.T(), suite.categories.Create(category))

	// Документ в окне предупреждения и документ на грани истечения
	soonDoc := suite.approveDocument(client.ID, category.ID, "Constancia RFC", now, now.AddDate(0, 0, 5))
	edgeDoc := suite.approveDocument(client.ID, category.ID, "Poder notarial", now, now.AddDate(0, 0, 2))

	// 1. Первый проход создаёт предупреждения по обоим документам
	report, err := suite.engine.RunJobA(ctx, now)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 0, report.ExpiredMarked)
	require.Equal(suite.T(), 2, report.ExpiringSoon)
	require.Equal(suite.T(), 2, report.NotificationsCreated)
	require.Equal(suite.T(), 0, report.Skipped)

	// 2. Повторный запуск идемпотентен: дубликаты не создаются
	report, err = suite.engine.RunJobA(ctx, now)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 2, report.ExpiringSoon)
	require.Equal(suite.T(), 0, report.NotificationsCreated)

	// 3. Через три дня документ на грани переходит в expired
	report, err = suite.engine.RunJobA(ctx, now.AddDate(0, 0, 3))
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 1, report.ExpiredMarked)
	require.Equal(suite.T(), 1, report.ExpiringSoon)
	require.Equal(suite.T(), 1, report.NotificationsCreated)

	stored, err := suite.documents.Get(edgeDoc.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.DocumentStatusExpired, stored.Status)

	stillApproved, err := suite.documents.Get(soonDoc.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.DocumentStatusApproved, stillApproved.Status)

	// 4. Уведомление об истечении получает срочный приоритет
	unread, err := suite.sink.Unread(10)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), unread, 3)

	var expiredNotification *domain.Notification
	for i := range unread {
		if unread[i].Type == domain.NotificationDocumentExpired {
			expiredNotification = &unread[i]
		}
	}
	require.NotNil(suite.T(), expiredNotification, "expected an expired-document notification")
	require.Equal(suite.T(), domain.PriorityUrgent, expiredNotification.Priority)
	require.Equal(suite.T(), edgeDoc.ID, expiredNotification.Subject.ID)

	// 5. Прочитанное уведомление уходит из непрочитанных
	require.NoError(suite.T(), suite.sink.MarkRead(expiredNotification.ID))
	unread, err = suite.sink.Unread(10)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), unread, 2)
}

func (suite *ComplianceLifecycleTestSuite) TestCompletenessReconciliation() {
	ctx := context.Background()
	now := time.Now().UTC()
	client := suite.registerClient("client-complete", "COM680524P76")

	hidden := domain.Client{ID: "client-hidden", Company: "Oculto SA", TaxID: "OCU680524P76", CreatedAt: now}
	require.NoError(suite.T(), suite.clients.Create(hidden))

	required1 := domain.DocumentCategory{ID: "cat-rfc", Code: "constancia_rfc", Name: "Constancia RFC", Required: true, Order: 1}
	required2 := domain.DocumentCategory{ID: "cat-acta", Code: "acta_constitutiva", Name: "Acta constitutiva", Required: true, Order: 2}
	optional := domain.DocumentCategory{ID: "cat-extra", Code: "comprobante", Name: "Comprobante de domicilio", Order: 3}
	require.NoError(suite.T(), suite.categories.Create(required1))
	require.NoError(suite.T(), suite.categories.Create(required2))
	require.NoError(suite.T(), suite.categories.Create(optional))

	// 1. Закрыта половина обязательных категорий: досье неполное, изменений нет
	suite.approveDocument(client.ID, required1.ID, "Constancia RFC", now, now.AddDate(0, 0, 2))
	report, err := suite.engine.RunJobB(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 1, report.TotalClients)
	require.Equal(suite.T(), 0, report.NewlyComplete)
	require.Equal(suite.T(), 0, report.NewlyIncomplete)

	percent, err := suite.dossier.Completeness(client.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 50, percent)

	// 2. Вторая обязательная категория закрыта: клиент становится полным
	suite.approveDocument(client.ID, required2.ID, "Acta constitutiva", now, time.Time{})
	report, err = suite.engine.RunJobB(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 1, report.NewlyComplete)
	require.Equal(suite.T(), 0, report.NewlyIncomplete)

	refreshed, err := suite.clients.Get(client.ID)
	require.NoError(suite.T(), err)
	require.True(suite.T(), refreshed.DossierComplete)
	require.False(suite.T(), refreshed.LastVerifiedAt.IsZero())

	// 3. Повторный запуск ничего не меняет
	report, err = suite.engine.RunJobB(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 0, report.NewlyComplete)
	require.Equal(suite.T(), 0, report.NewlyIncomplete)

	// 4. Истечение документа возвращает досье в неполные
	expired, err := suite.dossier.SweepExpirations(now.AddDate(0, 0, 3))
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 1, expired)

	report, err = suite.engine.RunJobB(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 0, report.NewlyComplete)
	require.Equal(suite.T(), 1, report.NewlyIncomplete)
}

func (suite *ComplianceLifecycleTestSuite) TestExternalListVerificationJob() {
	ctx := context.Background()

	clean := suite.registerClient("client-clean", "CLE680524P76")
	flagged := suite.registerClient("client-flagged", "FLA680524P76")
	presumed := suite.registerClient("client-presumed", "PRE680524P76")
	malformed := suite.registerClient("client-malformed", "XX12")
	suite.registerClient("client-no-rfc", "")

	verifier := satlist.NewStaticVerifier(
		[]string{"FLA680524P76"},
		[]string{"PRE680524P76"},
		suite.logger,
	)
	engine := compliance.NewEngineWithoutMetrics(
		suite.dossier,
		suite.documents,
		suite.clients,
		suite.verifications,
		verifier,
		suite.sink,
		suite.outbox,
		compliance.DefaultConfig(),
		suite.logger,
	)

	report, err := engine.RunJobC(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 3, report.Verified)
	require.Equal(suite.T(), 0, report.FromCache)
	require.Equal(suite.T(), 1, report.InDefinitiveList)
	require.Equal(suite.T(), 1, report.InPresumedList)
	require.Equal(suite.T(), 1, report.Malformed)
	require.Equal(suite.T(), 0, report.Errors)

	// Итог каждой проверки фиксируется строкой истории
	rows, err := suite.verifications.ListByClient(flagged.ID, 0)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	require.Equal(suite.T(), domain.VerificationStatusDefinitive, rows[0].Status)
	require.Equal(suite.T(), domain.VerificationMethodAutomatic, rows[0].Method)
	require.True(suite.T(), rows[0].InDefinitiveList)

	rows, err = suite.verifications.ListByClient(presumed.ID, 0)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	require.Equal(suite.T(), domain.VerificationStatusPresumed, rows[0].Status)

	rows, err = suite.verifications.ListByClient(clean.ID, 0)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	require.Equal(suite.T(), domain.VerificationStatusClean, rows[0].Status)

	// Ошибка формата фиксируется без обращения к внешнему сервису
	rows, err = suite.verifications.ListByClient(malformed.ID, 0)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	require.Equal(suite.T(), domain.VerificationStatusError, rows[0].Status)

	// Клиент без идентификатора в проверку не попадает
	rows, err = suite.verifications.ListByClient("client-no-rfc", 0)
	require.NoError(suite.T(), err)
	require.Empty(suite.T(), rows)
}

func (suite *ComplianceLifecycleTestSuite) TestVerifierFailureIsRecorded() {
	ctx := context.Background()
	client := suite.registerClient("client-err", "ERR680524P76")

	suite.verifier.Err = errors.New("sat service unavailable")

	report, err := suite.engine.RunJobC(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 0, report.Verified)
	require.Equal(suite.T(), 1, report.Errors)
	require.Equal(suite.T(), 1, suite.verifier.Calls)

	rows, err := suite.verifications.ListByClient(client.ID, 0)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	require.Equal(suite.T(), domain.VerificationStatusError, rows[0].Status)
}

// Вспомогательные методы

func (suite *ComplianceLifecycleTestSuite) seedCatalog() {
	catalog := []domain.Step{
		{ID: "step-opening", Number: 1, Description: "Apertura de expediente", AppliesInbound: true, AppliesOutbound: true, Pinned: true},
		{ID: "step-docs", Number: 2, Description: "Revisión documental", AppliesInbound: true, AppliesOutbound: true},
		{ID: "step-customs-inbound", Number: 3, Description: "Despacho aduanal de importación", AppliesInbound: true},
		{ID: "step-customs-outbound", Number: 4, Description: "Despacho aduanal de exportación", AppliesOutbound: true},
		{ID: "step-delivery", Number: 5, Description: "Entrega de mercancía", AppliesInbound: true, AppliesOutbound: true},
		{ID: "step-closing", Number: 9, Description: "Cierre de expediente", AppliesInbound: true, AppliesOutbound: true, Pinned: true},
	}
	for _, step := range catalog {
		require.NoError(suite.T(), suite.steps.Create(step))
	}
}

func (suite *ComplianceLifecycleTestSuite) registerClient(id, taxID string) domain.Client {
	client := domain.Client{
		ID:        id,
		Company:   "Comercializadora " + id,
		TaxID:     taxID,
		Visible:   true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(suite.T(), suite.clients.Create(client))
	return client
}

func (suite *ComplianceLifecycleTestSuite) createShipment(clientID string, direction domain.Direction) domain.Shipment {
	shipment := domain.Shipment{
		ID:          "shipment-" + clientID,
		ClientID:    clientID,
		Reference:   "FOLIO-2026-001",
		Direction:   direction,
		RegimenCode: "A1",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(suite.T(), suite.shipments.Create(shipment))
	return shipment
}

func (suite *ComplianceLifecycleTestSuite) approveDocument(clientID, categoryID, name string, documentDate, expirationDate time.Time) domain.ClientDocument {
	uploaded, err := suite.dossier.Upload(clientID, categoryID, name, name+".pdf", 2048, documentDate, expirationDate)
	require.NoError(suite.T(), err)

	approved, err := suite.dossier.Review(uploaded.ID, domain.DocumentStatusApproved, "reviewer-1", "ok")
	require.NoError(suite.T(), err)
	return approved
}

func TestComplianceLifecycle(t *testing.T) {
	suite.Run(t, new(ComplianceLifecycleTestSuite))
}
