package postgres

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

func TestVerificationRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewVerificationRepository(store)

	client := createTestClient(t, store, "client-verifications")

	now := time.Now().UTC().Round(time.Microsecond)
	clean := sampleVerification("verification-1", client.ID, now.Add(-2*time.Minute))
	flagged := sampleVerification("verification-2", client.ID, now.Add(-time.Minute))
	flagged.InDefinitiveList = true
	flagged.Method = domain.VerificationMethodManual
	flagged.Status = domain.VerificationStatusDefinitive
	flagged.Notes = "listed since 2023"

	if err := repo.Append(clean); err != nil {
		t.Fatalf("append clean verification: %v", err)
	}
	if err := repo.Append(flagged); err != nil {
		t.Fatalf("append flagged verification: %v", err)
	}

	history, err := repo.ListByClient(client.ID, 0)
	if err != nil {
		t.Fatalf("list verifications: %v", err)
	}
	if len(history) != 2 || history[0].ID != flagged.ID || history[1].ID != clean.ID {
		t.Fatalf("unexpected verification order: %+v", history)
	}

	got := history[0]
	if !got.InDefinitiveList || got.InPresumedList {
		t.Fatalf("unexpected list flags: %+v", got)
	}
	if got.Method != domain.VerificationMethodManual || got.Status != domain.VerificationStatusDefinitive {
		t.Fatalf("unexpected method or status: %+v", got)
	}
	if got.TaxID != flagged.TaxID || got.Notes != flagged.Notes || got.FromCache {
		t.Fatalf("unexpected verification payload: %+v", got)
	}
	if !got.VerifiedAt.Equal(flagged.VerifiedAt) {
		t.Fatalf("unexpected VerifiedAt: got=%v want=%v", got.VerifiedAt, flagged.VerifiedAt)
	}

	latest, err := repo.ListByClient(client.ID, 1)
	if err != nil {
		t.Fatalf("list verifications with limit: %v", err)
	}
	if len(latest) != 1 || latest[0].ID != flagged.ID {
		t.Fatalf("unexpected limited history: %+v", latest)
	}
}

func TestVerificationRepository_PostgresFillsVerifiedAt(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewVerificationRepository(store)

	client := createTestClient(t, store, "client-verification-fill")

	verification := sampleVerification("verification-fill", client.ID, time.Time{})
	if err := repo.Append(verification); err != nil {
		t.Fatalf("append verification: %v", err)
	}

	history, err := repo.ListByClient(client.ID, 0)
	if err != nil {
		t.Fatalf("list verifications: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 verification, got %d", len(history))
	}
	if history[0].VerifiedAt.IsZero() {
		t.Fatal("expected VerifiedAt to be filled on append")
	}
}

func sampleVerification(id, clientID string, verifiedAt time.Time) domain.ExternalListVerification {
	return domain.ExternalListVerification{
		ID:         id,
		ClientID:   clientID,
		TaxID:      "CAD980316QX1",
		Method:     domain.VerificationMethodAutomatic,
		Status:     domain.VerificationStatusClean,
		VerifiedAt: verifiedAt,
	}
}
