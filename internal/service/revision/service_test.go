package revision

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	"github.com/vladislavdragonenkov/cts/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cts/internal/storage/memory"
)

type fixture struct {
	svc       Service
	trackings domain.TrackingRepository
	revisions domain.RevisionRepository
	outbox    domain.OutboxRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	trackings := memory.NewTrackingRepository()
	f := &fixture{
		trackings: trackings,
		revisions: memory.NewRevisionRepository(trackings),
		outbox:    memory.NewOutboxRepository(),
	}
	f.svc = NewServiceWithoutMetrics(f.trackings, f.revisions, f.outbox, log.New().WithField("test", "revision"))
	return f
}

func (f *fixture) seedTracking(t *testing.T, id string, status domain.TrackingStatus) domain.ShipmentTracking {
	t.Helper()

	now := time.Now().UTC()
	tracking := domain.ShipmentTracking{
		ID:         id,
		ShipmentID: "ship-1",
		StepNumber: 2,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := f.trackings.Create(tracking); err != nil {
		t.Fatalf("create tracking: %v", err)
	}
	return tracking
}

func (f *fixture) outboxEvents(t *testing.T) []domain.OutboxMessage {
	t.Helper()

	type allPending interface {
		AllPending() []domain.OutboxMessage
	}
	repo, ok := f.outbox.(allPending)
	if !ok {
		t.Fatal("outbox repository does not support AllPending")
	}
	return repo.AllPending()
}

func TestRecord_SnapshotWithoutOverride(t *testing.T) {
	f := newFixture(t)
	f.seedTracking(t, "track-1", domain.TrackingStatusInProgress)

	occurred := time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC)
	revision, err := f.svc.Record("track-1", "user-7", "  called the broker  ", occurred, nil)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if revision.Notes != "called the broker" {
		t.Fatalf("expected trimmed notes, got %q", revision.Notes)
	}
	if revision.Status != string(domain.TrackingStatusInProgress) {
		t.Fatalf("expected status snapshot in_progress, got %s", revision.Status)
	}
	if revision.StepNumber != 2 {
		t.Fatalf("expected denormalized step number 2, got %d", revision.StepNumber)
	}
	if !revision.OccurredAt.Equal(occurred) {
		t.Fatalf("expected occurred_at preserved, got %v", revision.OccurredAt)
	}
	if revision.AssignedTo != "user-7" {
		t.Fatalf("expected assigned_to user-7, got %s", revision.AssignedTo)
	}

	// Без переопределения статус отслеживания не меняется и событий нет.
	stored, err := f.trackings.GetByID("track-1")
	if err != nil {
		t.Fatalf("get tracking: %v", err)
	}
	if stored.Status != domain.TrackingStatusInProgress {
		t.Fatalf("expected tracking untouched, got %s", stored.Status)
	}
	if events := f.outboxEvents(t); len(events) != 0 {
		t.Fatalf("expected no outbox events, got %d", len(events))
	}
}

func TestRecord_BlankNotes(t *testing.T) {
	f := newFixture(t)
	f.seedTracking(t, "track-1", domain.TrackingStatusPending)

	if _, err := f.svc.Record("track-1", "user-7", "   \t  ", time.Time{}, nil); !errors.Is(err, domain.ErrEmptyNotes) {
		t.Fatalf("expected ErrEmptyNotes, got %v", err)
	}

	history, err := f.svc.History("track-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no revisions, got %d", len(history))
	}
}

func TestRecord_UnknownTracking(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Record("missing", "user-7", "notes", time.Time{}, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecord_OverrideAppliesTransition(t *testing.T) {
	f := newFixture(t)
	f.seedTracking(t, "track-1", domain.TrackingStatusPending)

	override := domain.TrackingStatusInProgress
	revision, err := f.svc.Record("track-1", "user-7", "started processing", time.Time{}, &override)
	if err != nil {
		t.Fatalf("record with override: %v", err)
	}

	if revision.Status != string(domain.TrackingStatusInProgress) {
		t.Fatalf("expected revision status in_progress, got %s", revision.Status)
	}

	stored, err := f.trackings.GetByID("track-1")
	if err != nil {
		t.Fatalf("get tracking: %v", err)
	}
	if stored.Status != domain.TrackingStatusInProgress {
		t.Fatalf("expected tracking in_progress, got %s", stored.Status)
	}
	if stored.Version != 1 {
		t.Fatalf("expected version bumped to 1, got %d", stored.Version)
	}

	events := f.outboxEvents(t)
	if len(events) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(events))
	}
	if events[0].EventType != string(kafka.EventTypeTrackingStatusChanged) {
		t.Fatalf("expected status_changed event, got %s", events[0].EventType)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["revision_id"] != revision.ID {
		t.Fatalf("expected revision_id %s, got %v", revision.ID, payload["revision_id"])
	}
	if payload["to"] != string(domain.TrackingStatusInProgress) {
		t.Fatalf("expected to in_progress, got %v", payload["to"])
	}
}

func TestRecord_InvalidOverrideFailsWholeOperation(t *testing.T) {
	f := newFixture(t)
	f.seedTracking(t, "track-1", domain.TrackingStatusPending)

	override := domain.TrackingStatusCompleted
	if _, err := f.svc.Record("track-1", "user-7", "skip ahead", time.Time{}, &override); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	// Ни ревизии, ни перехода, ни события.
	history, err := f.svc.History("track-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no revisions after failed transition, got %d", len(history))
	}

	stored, err := f.trackings.GetByID("track-1")
	if err != nil {
		t.Fatalf("get tracking: %v", err)
	}
	if stored.Status != domain.TrackingStatusPending || stored.Version != 0 {
		t.Fatalf("expected tracking unchanged, got %s v%d", stored.Status, stored.Version)
	}
	if events := f.outboxEvents(t); len(events) != 0 {
		t.Fatalf("expected no outbox events, got %d", len(events))
	}
}

func TestRecord_OverrideEqualToCurrentSkipsTransition(t *testing.T) {
	f := newFixture(t)
	f.seedTracking(t, "track-1", domain.TrackingStatusCancelled)

	// cancelled -> cancelled разрешён таблицей, но совпадающее
	// переопределение перехода не делает.
	override := domain.TrackingStatusCancelled
	revision, err := f.svc.Record("track-1", "user-7", "still cancelled", time.Time{}, &override)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if revision.Status != string(domain.TrackingStatusCancelled) {
		t.Fatalf("expected snapshot cancelled, got %s", revision.Status)
	}

	stored, err := f.trackings.GetByID("track-1")
	if err != nil {
		t.Fatalf("get tracking: %v", err)
	}
	if stored.Version != 0 {
		t.Fatalf("expected no save, got version %d", stored.Version)
	}
	if events := f.outboxEvents(t); len(events) != 0 {
		t.Fatalf("expected no outbox events, got %d", len(events))
	}
}

func TestRecord_OverrideToCompletedSetsFinishedAt(t *testing.T) {
	f := newFixture(t)
	f.seedTracking(t, "track-1", domain.TrackingStatusInProgress)

	override := domain.TrackingStatusCompleted
	if _, err := f.svc.Record("track-1", "user-7", "done", time.Time{}, &override); err != nil {
		t.Fatalf("record: %v", err)
	}

	stored, err := f.trackings.GetByID("track-1")
	if err != nil {
		t.Fatalf("get tracking: %v", err)
	}
	if stored.Status != domain.TrackingStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.FinishedAt.IsZero() {
		t.Fatal("expected finished_at set")
	}
}

func TestRecord_UnknownOverrideValue(t *testing.T) {
	f := newFixture(t)
	f.seedTracking(t, "track-1", domain.TrackingStatusPending)

	override := domain.TrackingStatus("shipped")
	if _, err := f.svc.Record("track-1", "user-7", "notes", time.Time{}, &override); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	f := newFixture(t)
	f.seedTracking(t, "track-1", domain.TrackingStatusPending)

	base := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"rev-old", "rev-mid", "rev-new"} {
		revision := domain.Revision{
			ID:         id,
			TrackingID: "track-1",
			StepNumber: 2,
			Notes:      "note " + id,
			Status:     string(domain.TrackingStatusPending),
			OccurredAt: base.Add(time.Duration(i) * time.Hour),
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		if err := f.revisions.Append(revision); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	history, err := f.svc.History("track-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	want := []string{"rev-new", "rev-mid", "rev-old"}
	if len(history) != len(want) {
		t.Fatalf("expected %d revisions, got %d", len(want), len(history))
	}
	for i := range want {
		if history[i].ID != want[i] {
			t.Fatalf("expected %s at %d, got %s", want[i], i, history[i].ID)
		}
	}
}

func TestHistory_EmptyTrackingID(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.History(""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
