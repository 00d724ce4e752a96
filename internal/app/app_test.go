package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/cts/internal/health"
	"github.com/vladislavdragonenkov/cts/internal/storage/memory"
)

func TestStartWorker_ClosesDoneWhenRunReturns(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	done := startWorker(ctx, func(runCtx context.Context) {
		close(started)
		<-runCtx.Done()
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker did not start")
	}

	select {
	case <-done:
		t.Fatal("done must stay open while the worker is running")
	default:
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done must close after the worker returns")
	}
}

func TestStopWorker_WaitsForDone(t *testing.T) {
	t.Parallel()

	logger := log.WithField("test", "stop-worker")

	done := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(done)
	}()

	start := time.Now()
	stopWorker(nil, done, logger)
	elapsed := time.Since(start)

	if elapsed < 40*time.Millisecond {
		t.Errorf("stopWorker returned before the worker finished: %v", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("stopWorker took too long: %v", elapsed)
	}
}

func TestNewOutboxBacklogChecker_EmptyOutbox(t *testing.T) {
	t.Parallel()

	checker := newOutboxBacklogChecker(memory.NewOutboxRepository(), 10)

	check := checker.Check()
	if check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy check for empty outbox, got %+v", check)
	}
	if check.Name != "outbox" {
		t.Errorf("expected check name outbox, got %s", check.Name)
	}
}

func TestNewOutboxBacklogChecker_BacklogExceedsLimit(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	for i := 0; i < 3; i++ {
		if _, err := repo.Enqueue(domain.OutboxMessage{
			AggregateType: "tracking",
			AggregateID:   "shipment-1",
			EventType:     "cts.tracking.updated",
			Payload:       []byte(`{}`),
		}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	check := newOutboxBacklogChecker(repo, 2).Check()
	if check.Status != healthcheck.StatusUnhealthy {
		t.Fatalf("expected unhealthy check, got %+v", check)
	}
	if !strings.Contains(check.Message, "exceeds limit") {
		t.Errorf("expected backlog message, got %q", check.Message)
	}
}

func TestNewOutboxBacklogChecker_ZeroLimitDisablesCheck(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	if _, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "tracking",
		AggregateID:   "shipment-1",
		EventType:     "cts.tracking.updated",
		Payload:       []byte(`{}`),
	}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	check := newOutboxBacklogChecker(repo, 0).Check()
	if check.Status != healthcheck.StatusHealthy {
		t.Fatalf("zero limit must not flag backlog, got %+v", check)
	}
}

func TestNewOutboxBacklogChecker_StatsError(t *testing.T) {
	t.Parallel()

	check := newOutboxBacklogChecker(failingOutboxRepo{}, 10).Check()
	if check.Status != healthcheck.StatusUnhealthy {
		t.Fatalf("expected unhealthy check on stats error, got %+v", check)
	}
	if !strings.Contains(check.Message, "collect outbox stats") {
		t.Errorf("expected stats error message, got %q", check.Message)
	}
}

func TestBuildServices_MemoryDependencies(t *testing.T) {
	t.Parallel()

	logger := log.WithField("test", "build-services")

	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), logger)
	if err != nil {
		t.Fatalf("initRuntimeDependencies failed: %v", err)
	}

	sink, documents, err := buildServices(deps, logger)
	if err != nil {
		t.Fatalf("buildServices failed: %v", err)
	}
	if sink == nil {
		t.Error("expected non-nil notification sink")
	}
	if documents == nil {
		t.Error("expected non-nil document service")
	}
}

type failingOutboxRepo struct{}

func (failingOutboxRepo) Enqueue(domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, nil
}

func (failingOutboxRepo) PullPending(int) ([]domain.OutboxMessage, error) { return nil, nil }

func (failingOutboxRepo) Stats() (domain.OutboxStats, error) {
	return domain.OutboxStats{}, errors.New("stats unavailable")
}

func (failingOutboxRepo) MarkSent(string) error   { return nil }
func (failingOutboxRepo) MarkFailed(string) error { return nil }
