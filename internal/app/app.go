// Package app собирает сервис из репозиториев, внешних клиентов и воркеров
// по конфигурации и управляет его жизненным циклом.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/cts/internal/health"
	"github.com/vladislavdragonenkov/cts/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cts/internal/service/compliance"
	"github.com/vladislavdragonenkov/cts/internal/service/notification"
	"github.com/vladislavdragonenkov/cts/internal/service/outbox"
	"github.com/vladislavdragonenkov/cts/internal/service/satlist"
	"github.com/vladislavdragonenkov/cts/internal/storage/redis"
	"github.com/vladislavdragonenkov/cts/internal/version"
)

const (
	dependencyCheckTimeout = 2 * time.Second
	workerStopTimeout      = 5 * time.Second
	httpShutdownTimeout    = 5 * time.Second
)

// Run запускает сервис: хранилище, кэш, Kafka, регламентные воркеры и
// HTTP-сервер наблюдаемости. Блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := deps.close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close storage")
		}
	}()

	sink, documents, err := buildServices(deps, logger)
	if err != nil {
		return err
	}

	// Redis опционален: без него Job C каждый раз ходит к верификатору.
	var verifyCache satlist.ResultCache
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		client, redisErr := redis.Open(ctx, cfg.RedisAddr)
		if redisErr != nil {
			logger.WithError(redisErr).Warn("failed to connect to redis, continuing without verification cache")
		} else {
			redisClient = client
			verifyCache = redis.NewVerificationCache(client, cfg.VerifyCacheTTL)
			logger.WithField("addr", cfg.RedisAddr).Info("redis verification cache initialized")
		}
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if closeErr := redisClient.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close redis client")
		}
	}()

	// Kafka опционален: без producer события остаются в outbox.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafkaProducer(kafkaProducer, logger)

	verifier, err := createVerifier(cfg, verifyCache, logger.WithField("layer", "satlist"))
	if err != nil {
		return err
	}
	engine := createEngine(deps, documents, verifier, sink, cfg, logger.WithField("layer", "compliance"))

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("postgres", deps.storageChecker)
	}
	if redisClient != nil {
		healthHandler.RegisterChecker("redis", healthcheck.NonCritical(
			healthcheck.NewPingChecker("redis", dependencyCheckTimeout, redisClient.Ping)))
	}
	if kafkaProducer != nil {
		healthHandler.RegisterChecker("outbox", healthcheck.NonCritical(
			newOutboxBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPending)))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var workerDones []<-chan struct{}

	complianceWorker := compliance.NewWorker(engine,
		compliance.WithLogger(logger.WithField("component", "compliance-worker")),
		compliance.WithDailyInterval(cfg.ComplianceDailyInterval),
		compliance.WithWeeklyInterval(cfg.ComplianceWeeklyInterval),
		compliance.WithInitialRun(cfg.ComplianceInitialRun),
	)
	workerDones = append(workerDones, startWorker(workerCtx, complianceWorker.Run))

	retentionWorker := notification.NewRetentionWorker(deps.notifications,
		notification.WithLogger(logger.WithField("component", "notification-retention-worker")),
		notification.WithInterval(cfg.NotificationPurgeInterval),
		notification.WithRetention(cfg.NotificationRetention),
		notification.WithBatchSize(cfg.NotificationPurgeBatch),
	)
	workerDones = append(workerDones, startWorker(workerCtx, retentionWorker.Run))

	if kafkaProducer != nil {
		outboxWorker := outbox.NewWorker(deps.outboxRepo,
			kafka.NewOutboxPublisher(kafkaProducer, ""),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		workerDones = append(workerDones, startWorker(workerCtx, outboxWorker.Run))
	}

	logger.WithFields(log.Fields{
		"storage":      cfg.StorageDriver,
		"metrics_addr": cfg.MetricsAddr,
		"kafka":        kafkaProducer != nil,
		"redis":        redisClient != nil,
	}).Info("сервис запущен")

	<-ctx.Done()
	logger.Info("получен сигнал остановки, останавливаем воркеры")

	cancelWorkers()
	for _, done := range workerDones {
		stopWorker(nil, done, logger)
	}

	shutdownHTTP(metricsSrv, logger)

	return ctx.Err()
}

// newOutboxBacklogChecker сообщает о застрявшем outbox: бэклог растёт,
// когда брокер недоступен дольше, чем очередь успевает разгребаться.
func newOutboxBacklogChecker(repo domain.OutboxRepository, maxPending int) healthcheck.Checker {
	return healthcheck.NewSimpleChecker("outbox", func() error {
		stats, err := repo.Stats()
		if err != nil {
			return fmt.Errorf("collect outbox stats: %w", err)
		}
		if maxPending > 0 && stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds limit %d", stats.PendingCount, maxPending)
		}
		return nil
	})
}

// startWorker запускает воркер в горутине и возвращает канал его завершения.
func startWorker(ctx context.Context, run func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	return done
}

// stopWorker отменяет воркер и дожидается его завершения с таймаутом.
func stopWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}

	select {
	case <-done:
	case <-time.After(workerStopTimeout):
		logger.Warn("worker stop exceeded timeout")
	}
}

// startMetricsServer запускает HTTP-сервер наблюдаемости:
// /metrics, /healthz, /livez и /readyz.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
