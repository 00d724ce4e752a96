package compliance

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// RetryConfig — конфигурация повторов запуска джоба.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  5 * time.Minute,
		MaxDelay:      30 * time.Minute,
		BackoffFactor: 2.0,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 5 * time.Minute
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Minute
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 2.0
	}
	return c
}

// RetryableEngine оборачивает движок повторами на уровне джоба.
// Повторяется только отказ джоба целиком; сбои по отдельным сущностям
// движок учитывает в отчёте и наружу не отдаёт.
type RetryableEngine struct {
	engine Engine
	config RetryConfig
	logger *log.Entry
}

// NewRetryableEngine создаёт движок с retry логикой.
func NewRetryableEngine(engine Engine, config RetryConfig, logger *log.Entry) *RetryableEngine {
	if logger == nil {
		logger = log.New().WithField("component", "retryable-compliance")
	}
	return &RetryableEngine{
		engine: engine,
		config: config.normalized(),
		logger: logger,
	}
}

// RunJobA запускает проход по срокам действия с повторами.
func (re *RetryableEngine) RunJobA(ctx context.Context, today time.Time) (ExpirationReport, error) {
	var report ExpirationReport
	err := re.executeWithRetry(ctx, jobExpirationSweep, func() error {
		var jobErr error
		report, jobErr = re.engine.RunJobA(ctx, today)
		return jobErr
	})
	return report, err
}

// RunJobB запускает пересчёт полноты досье с повторами.
func (re *RetryableEngine) RunJobB(ctx context.Context) (CompletenessReport, error) {
	var report CompletenessReport
	err := re.executeWithRetry(ctx, jobCompleteness, func() error {
		var jobErr error
		report, jobErr = re.engine.RunJobB(ctx)
		return jobErr
	})
	return report, err
}

// RunJobC запускает проверку по внешним спискам с повторами.
func (re *RetryableEngine) RunJobC(ctx context.Context) (VerificationReport, error) {
	var report VerificationReport
	err := re.executeWithRetry(ctx, jobVerification, func() error {
		var jobErr error
		report, jobErr = re.engine.RunJobC(ctx)
		return jobErr
	})
	return report, err
}

func (re *RetryableEngine) executeWithRetry(ctx context.Context, job string, fn func() error) error {
	var lastErr error
	delay := re.config.InitialDelay

	for attempt := 1; attempt <= re.config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				re.logger.WithFields(log.Fields{
					"job":     job,
					"attempt": attempt,
				}).Info("job succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if attempt < re.config.MaxAttempts {
			re.logger.WithFields(log.Fields{
				"job":     job,
				"attempt": attempt,
				"delay":   delay,
				"error":   err,
			}).Warn("job failed, retrying")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * re.config.BackoffFactor)
			if delay > re.config.MaxDelay {
				delay = re.config.MaxDelay
			}
		}
	}

	re.logger.WithFields(log.Fields{
		"job":          job,
		"max_attempts": re.config.MaxAttempts,
		"error":        lastErr,
	}).Error("job failed after all retry attempts")
	return lastErr
}

var _ Engine = (*RetryableEngine)(nil)
