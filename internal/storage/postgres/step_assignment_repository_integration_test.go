package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

func TestStepAssignmentRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewStepAssignmentRepository(store)

	client := createTestClient(t, store, "client-plan")
	stepMin := createTestStep(t, store, "step-min", 1)
	stepSeq := createTestStep(t, store, "step-seq", 10)
	stepMax := createTestStep(t, store, "step-max", 99)

	now := time.Now().UTC().Round(time.Microsecond)
	assignments := []domain.ClientStepAssignment{
		{ClientID: client.ID, StepID: stepMin.ID, Order: domain.StepOrderMin, Active: true, CreatedAt: now},
		{ClientID: client.ID, StepID: stepSeq.ID, Order: 20, Active: true, CreatedAt: now},
		{ClientID: client.ID, StepID: stepMax.ID, Order: domain.StepOrderMax, Active: true, CreatedAt: now},
	}
	for _, assignment := range assignments {
		if err := repo.Create(assignment); err != nil {
			t.Fatalf("create assignment %s: %v", assignment.StepID, err)
		}
	}

	got, err := repo.Get(client.ID, stepSeq.ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if got.Order != 20 || !got.Active {
		t.Fatalf("unexpected assignment payload: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected CreatedAt: got=%v want=%v", got.CreatedAt, now)
	}

	listed, err := repo.ListByClient(client.ID)
	if err != nil {
		t.Fatalf("list by client: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(listed))
	}
	if listed[0].StepID != stepMin.ID || listed[1].StepID != stepSeq.ID || listed[2].StepID != stepMax.ID {
		t.Fatalf("unexpected plan order: %s, %s, %s", listed[0].StepID, listed[1].StepID, listed[2].StepID)
	}

	got.Order = 35
	got.Active = false
	if err := repo.Save(got); err != nil {
		t.Fatalf("save assignment: %v", err)
	}

	updated, err := repo.Get(client.ID, stepSeq.ID)
	if err != nil {
		t.Fatalf("get updated assignment: %v", err)
	}
	if updated.Order != 35 || updated.Active {
		t.Fatalf("unexpected assignment after save: %+v", updated)
	}
}

func TestStepAssignmentRepository_PostgresDeleteAndDeleteExcept(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewStepAssignmentRepository(store)

	client := createTestClient(t, store, "client-trim")
	stepIDs := []string{"step-min", "step-a", "step-b", "step-max"}
	for i, stepID := range stepIDs {
		createTestStep(t, store, stepID, i+1)
		assignment := domain.ClientStepAssignment{
			ClientID: client.ID,
			StepID:   stepID,
			Order:    uint(i * 10),
			Active:   true,
		}
		if err := repo.Create(assignment); err != nil {
			t.Fatalf("create assignment %s: %v", stepID, err)
		}
	}

	removed, err := repo.DeleteExcept(client.ID, []string{"step-min", "step-a", "step-max"})
	if err != nil {
		t.Fatalf("delete except: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed assignment, got %d", removed)
	}
	if _, err := repo.Get(client.ID, "step-b"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected step-b assignment to be removed, got %v", err)
	}

	if err := repo.Delete(client.ID, "step-a"); err != nil {
		t.Fatalf("delete assignment: %v", err)
	}

	// Пустой список сохраняемых этапов очищает весь план.
	removed, err = repo.DeleteExcept(client.ID, nil)
	if err != nil {
		t.Fatalf("delete except all: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed assignments, got %d", removed)
	}

	listed, err := repo.ListByClient(client.ID)
	if err != nil {
		t.Fatalf("list after cleanup: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty plan, got %+v", listed)
	}
}

func TestStepAssignmentRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewStepAssignmentRepository(store)

	client := createTestClient(t, store, "client-errors")
	step := createTestStep(t, store, "step-errors", 5)

	if _, err := repo.Get(client.ID, "missing-step"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	missing := domain.ClientStepAssignment{ClientID: client.ID, StepID: "missing-step", Order: 10, Active: true}
	if err := repo.Save(missing); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on save missing, got %v", err)
	}
	if err := repo.Delete(client.ID, "missing-step"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete missing, got %v", err)
	}

	assignment := domain.ClientStepAssignment{ClientID: client.ID, StepID: step.ID, Order: 10, Active: true}
	if err := repo.Create(assignment); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if err := repo.Create(assignment); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists on duplicate create, got %v", err)
	}
}
