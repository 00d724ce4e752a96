package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	"github.com/vladislavdragonenkov/cts/internal/health"
	"github.com/vladislavdragonenkov/cts/internal/storage/memory"
	"github.com/vladislavdragonenkov/cts/internal/storage/postgres"
)

// runtimeDependencies собирает репозитории и ресурсы хранилища,
// инициализированные по выбранному драйверу.
type runtimeDependencies struct {
	clients       domain.ClientRepository
	shipments     domain.ShipmentRepository
	trackings     domain.TrackingRepository
	revisions     domain.RevisionRepository
	steps         domain.StepRepository
	assignments   domain.StepAssignmentRepository
	documents     domain.DocumentRepository
	categories    domain.DocumentCategoryRepository
	verifications domain.VerificationRepository
	notifications domain.NotificationRepository
	outboxRepo    domain.OutboxRepository

	// storageChecker присутствует только у внешнего хранилища.
	storageChecker health.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// initRuntimeDependencies создаёт репозитории по cfg.StorageDriver.
// Для postgres открывает пул соединений и по конфигурации применяет схему.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		trackings := memory.NewTrackingRepository()
		return &runtimeDependencies{
			clients:       memory.NewClientRepository(),
			shipments:     memory.NewShipmentRepository(),
			trackings:     trackings,
			revisions:     memory.NewRevisionRepository(trackings),
			steps:         memory.NewStepRepository(),
			assignments:   memory.NewStepAssignmentRepository(),
			documents:     memory.NewDocumentRepository(),
			categories:    memory.NewCategoryRepository(),
			verifications: memory.NewVerificationRepository(),
			notifications: memory.NewNotificationRepository(),
			outboxRepo:    memory.NewOutboxRepository(),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres schema: %w", err)
			}
			logger.Info("postgres schema is up to date")
		}

		return &runtimeDependencies{
			clients:        postgres.NewClientRepository(store),
			shipments:      postgres.NewShipmentRepository(store),
			trackings:      postgres.NewTrackingRepository(store),
			revisions:      postgres.NewRevisionRepository(store),
			steps:          postgres.NewStepRepository(store),
			assignments:    postgres.NewStepAssignmentRepository(store),
			documents:      postgres.NewDocumentRepository(store),
			categories:     postgres.NewDocumentCategoryRepository(store),
			verifications:  postgres.NewVerificationRepository(store),
			notifications:  postgres.NewNotificationRepository(store),
			outboxRepo:     postgres.NewOutboxRepository(store),
			storageChecker: health.NewPingChecker("postgres", dependencyCheckTimeout, store.Ping),
			closeFn:        store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
