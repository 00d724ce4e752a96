package app

import (
	"time"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса. Значения читаются из
// переменных окружения в cmd/customs-service.
type Config struct {
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	RedisAddr      string
	VerifyCacheTTL time.Duration

	KafkaBrokers string

	SATDefinitiveFile string
	SATPresumedFile   string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	WarningWindowDays int
	VerifyTimeout     time.Duration
	MaxParallel       int

	ComplianceDailyInterval  time.Duration
	ComplianceWeeklyInterval time.Duration
	ComplianceInitialRun     bool

	NotificationPurgeInterval time.Duration
	NotificationRetention     time.Duration
	NotificationPurgeBatch    int
}

// DefaultConfig возвращает конфигурацию по умолчанию: in-memory хранилище,
// без Kafka и Redis, интервалы регламентных джобов как в проде.
func DefaultConfig() Config {
	return Config{
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		VerifyCacheTTL: 24 * time.Hour,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,
		OutboxMaxPending:   1000,

		WarningWindowDays: 30,
		VerifyTimeout:     30 * time.Second,
		MaxParallel:       8,

		ComplianceDailyInterval:  24 * time.Hour,
		ComplianceWeeklyInterval: 7 * 24 * time.Hour,
		ComplianceInitialRun:     true,

		NotificationPurgeInterval: 24 * time.Hour,
		NotificationRetention:     90 * 24 * time.Hour,
		NotificationPurgeBatch:    500,
	}
}
