package compliance

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultDailyInterval  = 24 * time.Hour
	defaultWeeklyInterval = 7 * 24 * time.Hour
)

// WorkerOptions задаёт параметры планировщика джобов комплаенса.
type WorkerOptions struct {
	Logger         *log.Entry
	DailyInterval  time.Duration
	WeeklyInterval time.Duration
	InitialRun     bool
}

// WorkerOption настраивает Worker.
type WorkerOption func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithDailyInterval задаёт период ежедневного цикла (джобы A и B).
func WithDailyInterval(interval time.Duration) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.DailyInterval = interval
	}
}

// WithWeeklyInterval задаёт период еженедельного цикла (джоб C).
func WithWeeklyInterval(interval time.Duration) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.WeeklyInterval = interval
	}
}

// WithInitialRun включает немедленный прогон циклов при старте.
func WithInitialRun(initial bool) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.InitialRun = initial
	}
}

// Worker запускает джобы комплаенса по расписанию: ежедневный цикл
// выполняет A, затем B; еженедельный выполняет C.
type Worker struct {
	engine         Engine
	logger         *log.Entry
	dailyInterval  time.Duration
	weeklyInterval time.Duration
	initialRun     bool
}

// NewWorker создаёт планировщик джобов комплаенса.
func NewWorker(engine Engine, options ...WorkerOption) *Worker {
	opts := WorkerOptions{
		DailyInterval:  defaultDailyInterval,
		WeeklyInterval: defaultWeeklyInterval,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "compliance-worker")
	}

	if opts.DailyInterval <= 0 {
		opts.DailyInterval = defaultDailyInterval
	}
	if opts.WeeklyInterval <= 0 {
		opts.WeeklyInterval = defaultWeeklyInterval
	}

	return &Worker{
		engine:         engine,
		logger:         logger,
		dailyInterval:  opts.DailyInterval,
		weeklyInterval: opts.WeeklyInterval,
		initialRun:     opts.InitialRun,
	}
}

// Run выполняет циклы по расписанию до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.engine == nil {
		w.logger.Warn("compliance worker is disabled: engine is nil")
		return
	}

	if w.initialRun {
		w.RunDailyOnce(ctx)
		w.RunWeeklyOnce(ctx)
	}

	daily := time.NewTicker(w.dailyInterval)
	defer daily.Stop()
	weekly := time.NewTicker(w.weeklyInterval)
	defer weekly.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-daily.C:
			w.RunDailyOnce(ctx)
		case <-weekly.C:
			w.RunWeeklyOnce(ctx)
		}
	}
}

// RunDailyOnce выполняет один ежедневный цикл: джоб A, затем джоб B.
func (w *Worker) RunDailyOnce(ctx context.Context) {
	if _, err := w.engine.RunJobA(ctx, time.Now().UTC()); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.WithError(err).Warn("expiration sweep run failed")
	}

	if ctx.Err() != nil {
		return
	}

	if _, err := w.engine.RunJobB(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.WithError(err).Warn("completeness run failed")
	}
}

// RunWeeklyOnce выполняет один еженедельный цикл: джоб C.
func (w *Worker) RunWeeklyOnce(ctx context.Context) {
	if _, err := w.engine.RunJobC(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.WithError(err).Warn("verification run failed")
	}
}
