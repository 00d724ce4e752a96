package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/app"
)

// Переменные окружения сервиса.
const (
	envMetricsAddr = "CTS_METRICS_ADDR"

	envStorageDriver       = "CTS_STORAGE_DRIVER"
	envPostgresDSN         = "CTS_POSTGRES_DSN"
	envPostgresAutoMigrate = "CTS_POSTGRES_AUTO_MIGRATE"

	envRedisAddr      = "CTS_REDIS_ADDR"
	envVerifyCacheTTL = "CTS_VERIFY_CACHE_TTL"

	envKafkaBrokers = "KAFKA_BROKERS"

	envSATDefinitiveFile = "CTS_SAT_DEFINITIVE_FILE"
	envSATPresumedFile   = "CTS_SAT_PRESUMED_FILE"

	envOutboxPollInterval = "CTS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "CTS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "CTS_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay   = "CTS_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending   = "CTS_OUTBOX_MAX_PENDING"

	envWarningWindowDays = "CTS_WARNING_WINDOW_DAYS"
	envVerifyTimeout     = "CTS_VERIFY_TIMEOUT"
	envMaxParallel       = "CTS_MAX_PARALLEL"

	envComplianceDailyInterval  = "CTS_COMPLIANCE_DAILY_INTERVAL"
	envComplianceWeeklyInterval = "CTS_COMPLIANCE_WEEKLY_INTERVAL"
	envComplianceInitialRun     = "CTS_COMPLIANCE_INITIAL_RUN"

	envNotificationPurgeInterval = "CTS_NOTIFICATION_PURGE_INTERVAL"
	envNotificationRetention     = "CTS_NOTIFICATION_RETENTION"
	envNotificationPurgeBatch    = "CTS_NOTIFICATION_PURGE_BATCH"
)

// envLookup абстрагирует os.LookupEnv для тестов.
type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfigFromEnv собирает конфигурацию из окружения поверх значений по
// умолчанию. Невалидные значения пропускаются с предупреждением, чтобы
// опечатка в окружении не роняла сервис на старте.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
	}

	setString := func(key string, target *string) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		if value := strings.TrimSpace(raw); value != "" {
			*target = value
		}
	}

	setBool := func(key string, target *bool) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		value, err := parseBool(raw)
		if err != nil {
			warn(key, err)
			return
		}
		*target = value
	}

	setInt := func(key string, target *int, valid func(int) bool, requirement string) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		value, err := parseInt(raw, valid, requirement)
		if err != nil {
			warn(key, err)
			return
		}
		*target = value
	}

	setDuration := func(key string, target *time.Duration, valid func(time.Duration) bool, requirement string) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		value, err := parseDuration(raw, valid, requirement)
		if err != nil {
			warn(key, err)
			return
		}
		*target = value
	}

	setString(envMetricsAddr, &cfg.MetricsAddr)

	if raw, ok := lookup(envStorageDriver); ok {
		if value := strings.ToLower(strings.TrimSpace(raw)); value != "" {
			cfg.StorageDriver = value
		}
	}
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setBool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	// Пустое значение явно отключает внешнюю зависимость.
	if raw, ok := lookup(envRedisAddr); ok {
		cfg.RedisAddr = strings.TrimSpace(raw)
	}
	setDuration(envVerifyCacheTTL, &cfg.VerifyCacheTTL, positiveDuration, "must be > 0")

	if raw, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = strings.TrimSpace(raw)
	}

	setString(envSATDefinitiveFile, &cfg.SATDefinitiveFile)
	setString(envSATPresumedFile, &cfg.SATPresumedFile)

	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize, positiveInt, "must be > 0")
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positiveInt, "must be > 0")
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	setInt(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegativeInt, "must be >= 0")

	setInt(envWarningWindowDays, &cfg.WarningWindowDays, positiveInt, "must be > 0")
	setDuration(envVerifyTimeout, &cfg.VerifyTimeout, positiveDuration, "must be > 0")
	setInt(envMaxParallel, &cfg.MaxParallel, positiveInt, "must be > 0")

	setDuration(envComplianceDailyInterval, &cfg.ComplianceDailyInterval, positiveDuration, "must be > 0")
	setDuration(envComplianceWeeklyInterval, &cfg.ComplianceWeeklyInterval, positiveDuration, "must be > 0")
	setBool(envComplianceInitialRun, &cfg.ComplianceInitialRun)

	setDuration(envNotificationPurgeInterval, &cfg.NotificationPurgeInterval, positiveDuration, "must be > 0")
	setDuration(envNotificationRetention, &cfg.NotificationRetention, positiveDuration, "must be > 0")
	setInt(envNotificationPurgeBatch, &cfg.NotificationPurgeBatch, positiveInt, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, requirement string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d is invalid: %s", value, requirement)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, requirement string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s is invalid: %s", value, requirement)
	}
	return value, nil
}

func positiveInt(v int) bool { return v > 0 }

func nonNegativeInt(v int) bool { return v >= 0 }

func positiveDuration(v time.Duration) bool { return v > 0 }

func nonNegativeDuration(v time.Duration) bool { return v >= 0 }

func main() {
	setupLogger()

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warnf("конфигурация: %s, используем значение по умолчанию", warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"storage":      cfg.StorageDriver,
		"metrics_addr": cfg.MetricsAddr,
	}).Info("запускаем сервис таможенного сопровождения")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("сервис остановлен")
}
