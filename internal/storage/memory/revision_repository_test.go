package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	"github.com/vladislavdragonenkov/cts/internal/storage/memory"
)

func newRevision(id string, createdAt time.Time) domain.Revision {
	return domain.Revision{
		ID:         id,
		TrackingID: "tracking-1",
		AssignedTo: "agent-1",
		StepNumber: 3,
		Notes:      "customs review started",
		Status:     string(domain.TrackingStatusPending),
		OccurredAt: createdAt,
		CreatedAt:  createdAt,
	}
}

func TestRevisionRepository_AppendAndList(t *testing.T) {
	repo := memory.NewRevisionRepository(memory.NewTrackingRepository())
	base := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

	if err := repo.Append(newRevision("revision-1", base)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := repo.Append(newRevision("revision-2", base.Add(time.Minute))); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	revisions, err := repo.ListByTracking("tracking-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(revisions))
	}
	if revisions[0].ID != "revision-2" {
		t.Fatalf("expected newest first, got %s", revisions[0].ID)
	}
}

func TestRevisionRepository_AppendWithTracking(t *testing.T) {
	trackings := memory.NewTrackingRepository()
	repo := memory.NewRevisionRepository(trackings)

	if err := trackings.Create(newTracking()); err != nil {
		t.Fatalf("create tracking failed: %v", err)
	}

	stored, err := trackings.GetByID("tracking-1")
	if err != nil {
		t.Fatalf("get tracking failed: %v", err)
	}
	stored.Status = domain.TrackingStatusPending

	if err := repo.AppendWithTracking(newRevision("revision-1", time.Time{}), stored); err != nil {
		t.Fatalf("append with tracking failed: %v", err)
	}

	updated, err := trackings.GetByID("tracking-1")
	if err != nil {
		t.Fatalf("get tracking failed: %v", err)
	}
	if updated.Status != domain.TrackingStatusPending {
		t.Fatalf("expected status %s, got %s", domain.TrackingStatusPending, updated.Status)
	}
	if updated.Version != stored.Version+1 {
		t.Fatalf("expected version increment, got %d", updated.Version)
	}

	revisions, err := repo.ListByTracking("tracking-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(revisions) != 1 {
		t.Fatalf("expected 1 revision, got %d", len(revisions))
	}
	if revisions[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be filled")
	}
}

func TestRevisionRepository_AppendWithTrackingConflict(t *testing.T) {
	trackings := memory.NewTrackingRepository()
	repo := memory.NewRevisionRepository(trackings)

	tracking := newTracking()
	if err := trackings.Create(tracking); err != nil {
		t.Fatalf("create tracking failed: %v", err)
	}

	tracking.Version = 42
	err := repo.AppendWithTracking(newRevision("revision-1", time.Time{}), tracking)
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	revisions, err := repo.ListByTracking("tracking-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(revisions) != 0 {
		t.Fatalf("expected no revisions after conflict, got %d", len(revisions))
	}
}
