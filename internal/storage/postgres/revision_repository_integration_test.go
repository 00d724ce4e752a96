package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

func TestRevisionRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewRevisionRepository(store)

	client := createTestClient(t, store, "client-revisions")
	shipment := createTestShipment(t, store, "shipment-revisions", client.ID)
	tracking := createTestTracking(t, store, "tracking-revisions", shipment.ID, 3)

	now := time.Now().UTC().Round(time.Microsecond)
	rev1 := sampleRevision("revision-1", tracking.ID, now.Add(-2*time.Minute))
	rev2 := sampleRevision("revision-2", tracking.ID, now.Add(-time.Minute))
	rev2.Notes = "documents resubmitted"

	if err := repo.Append(rev1); err != nil {
		t.Fatalf("append revision1: %v", err)
	}
	if err := repo.Append(rev2); err != nil {
		t.Fatalf("append revision2: %v", err)
	}

	listed, err := repo.ListByTracking(tracking.ID)
	if err != nil {
		t.Fatalf("list revisions: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != rev2.ID || listed[1].ID != rev1.ID {
		t.Fatalf("unexpected revision order: %+v", listed)
	}

	got := listed[1]
	if got.AssignedTo != rev1.AssignedTo || got.Notes != rev1.Notes || got.Status != rev1.Status {
		t.Fatalf("unexpected revision payload: %+v", got)
	}
	if got.StepNumber != 3 {
		t.Fatalf("unexpected revision step number: %d", got.StepNumber)
	}
	if !got.OccurredAt.Equal(rev1.OccurredAt) {
		t.Fatalf("unexpected OccurredAt: got=%v want=%v", got.OccurredAt, rev1.OccurredAt)
	}
}

func TestRevisionRepository_PostgresAppendWithTracking(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewRevisionRepository(store)

	client := createTestClient(t, store, "client-atomic")
	shipment := createTestShipment(t, store, "shipment-atomic", client.ID)
	tracking := createTestTracking(t, store, "tracking-atomic", shipment.ID, 4)

	now := time.Now().UTC().Round(time.Microsecond)
	revision := sampleRevision("revision-atomic", tracking.ID, now)
	revision.StepNumber = tracking.StepNumber
	revision.Status = string(domain.TrackingStatusInProgress)

	tracking.Status = domain.TrackingStatusInProgress
	tracking.UpdatedAt = now
	if err := repo.AppendWithTracking(revision, tracking); err != nil {
		t.Fatalf("append with tracking: %v", err)
	}

	updated, err := NewTrackingRepository(store).GetByID(tracking.ID)
	if err != nil {
		t.Fatalf("get updated tracking: %v", err)
	}
	if updated.Status != domain.TrackingStatusInProgress {
		t.Fatalf("unexpected tracking status: %s", updated.Status)
	}
	if updated.Version != tracking.Version+1 {
		t.Fatalf("unexpected tracking version: got=%d want=%d", updated.Version, tracking.Version+1)
	}

	listed, err := repo.ListByTracking(tracking.ID)
	if err != nil {
		t.Fatalf("list revisions: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != revision.ID {
		t.Fatalf("unexpected revisions after append: %+v", listed)
	}
}

func TestRevisionRepository_PostgresAppendWithTrackingConflict(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewRevisionRepository(store)

	client := createTestClient(t, store, "client-conflict")
	shipment := createTestShipment(t, store, "shipment-conflict", client.ID)
	tracking := createTestTracking(t, store, "tracking-conflict", shipment.ID, 6)

	now := time.Now().UTC().Round(time.Microsecond)
	revision := sampleRevision("revision-conflict", tracking.ID, now)
	revision.StepNumber = tracking.StepNumber

	stale := tracking
	stale.Status = domain.TrackingStatusInProgress
	stale.Version = 42
	if err := repo.AppendWithTracking(revision, stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	// Конфликт откатывает транзакцию целиком: ревизия не записана.
	listed, err := repo.ListByTracking(tracking.ID)
	if err != nil {
		t.Fatalf("list revisions after conflict: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected no revisions after rollback, got %+v", listed)
	}
}

func sampleRevision(id, trackingID string, createdAt time.Time) domain.Revision {
	return domain.Revision{
		ID:         id,
		TrackingID: trackingID,
		AssignedTo: "agent-1",
		StepNumber: 3,
		Notes:      "customs review started",
		Status:     string(domain.TrackingStatusPending),
		OccurredAt: createdAt,
		CreatedAt:  createdAt,
	}
}
