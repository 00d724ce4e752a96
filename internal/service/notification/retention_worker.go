package notification

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

const (
	defaultPurgeInterval  = 24 * time.Hour
	defaultPurgeRetention = 90 * 24 * time.Hour
	defaultPurgeBatchSize = 500
)

var (
	notificationPurgeRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cts_notification_purge_runs_total",
		Help: "Total number of notification purge runs grouped by result.",
	}, []string{"result"})
	notificationPurgeDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cts_notification_purge_deleted_total",
		Help: "Total number of purged read notifications.",
	})
	notificationPurgeLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cts_notification_purge_last_deleted",
		Help: "Number of purged notifications during the last run.",
	})
)

// RetentionOptions задаёт параметры воркера очистки прочитанных уведомлений.
type RetentionOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	Retention time.Duration
	BatchSize int
}

// RetentionOption настраивает RetentionWorker.
type RetentionOption func(*RetentionOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между циклами очистки.
func WithInterval(interval time.Duration) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Interval = interval
	}
}

// WithRetention задаёт срок хранения прочитанных уведомлений.
func WithRetention(retention time.Duration) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Retention = retention
	}
}

// WithBatchSize задаёт размер batch для одного удаления.
func WithBatchSize(batchSize int) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.BatchSize = batchSize
	}
}

// RetentionWorker периодически удаляет прочитанные уведомления,
// пережившие срок хранения. Непрочитанные записи не трогает.
type RetentionWorker struct {
	repo      domain.NotificationRepository
	logger    *log.Entry
	interval  time.Duration
	retention time.Duration
	batchSize int
}

// NewRetentionWorker создаёт воркер очистки уведомлений.
func NewRetentionWorker(repo domain.NotificationRepository, options ...RetentionOption) *RetentionWorker {
	opts := RetentionOptions{
		Interval:  defaultPurgeInterval,
		Retention: defaultPurgeRetention,
		BatchSize: defaultPurgeBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "notification-retention-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultPurgeInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultPurgeRetention
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultPurgeBatchSize
	}

	return &RetentionWorker{
		repo:      repo,
		logger:    logger,
		interval:  opts.Interval,
		retention: opts.Retention,
		batchSize: opts.BatchSize,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("notification retention worker is disabled: repo is nil")
		return
	}

	w.purge(ctx, time.Now().UTC())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.purge(ctx, time.Now().UTC())
		}
	}
}

func (w *RetentionWorker) purge(ctx context.Context, now time.Time) {
	deleted, err := w.PurgeRead(ctx, now.Add(-w.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		notificationPurgeRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("notification purge run failed")
		return
	}

	notificationPurgeRunsTotal.WithLabelValues("ok").Inc()
	notificationPurgeLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("notification purge completed")
	}
}

// PurgeRead удаляет прочитанные уведомления старше before порциями batchSize.
func (w *RetentionWorker) PurgeRead(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC().Add(-w.retention)
	}

	totalDeleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		deleted, err := w.repo.DeleteReadBefore(before, w.batchSize)
		if err != nil {
			return totalDeleted, err
		}

		totalDeleted += deleted
		if deleted > 0 {
			notificationPurgeDeletedTotal.Add(float64(deleted))
		}

		if deleted < w.batchSize {
			break
		}
	}

	return totalDeleted, nil
}
