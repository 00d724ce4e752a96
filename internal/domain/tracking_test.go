package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

var allTrackingStatuses = []domain.TrackingStatus{
	domain.TrackingStatusNotStarted,
	domain.TrackingStatusPending,
	domain.TrackingStatusInProgress,
	domain.TrackingStatusCompleted,
	domain.TrackingStatusCancelled,
}

func TestTrackingStatusCanTransitionTo(t *testing.T) {
	type edge struct {
		from domain.TrackingStatus
		to   domain.TrackingStatus
	}

	allowed := map[edge]bool{
		{domain.TrackingStatusNotStarted, domain.TrackingStatusPending}:   true,
		{domain.TrackingStatusNotStarted, domain.TrackingStatusCancelled}: true,
		{domain.TrackingStatusPending, domain.TrackingStatusInProgress}:   true,
		{domain.TrackingStatusPending, domain.TrackingStatusCancelled}:    true,
		{domain.TrackingStatusInProgress, domain.TrackingStatusCompleted}: true,
		{domain.TrackingStatusInProgress, domain.TrackingStatusCancelled}: true,
		{domain.TrackingStatusCompleted, domain.TrackingStatusPending}:    true,
		{domain.TrackingStatusCompleted, domain.TrackingStatusInProgress}: true,
		{domain.TrackingStatusCompleted, domain.TrackingStatusCancelled}:  true,
		{domain.TrackingStatusCancelled, domain.TrackingStatusCancelled}:  true,
	}

	// Перебираем все пары статусов: всё, что вне таблицы, должно быть запрещено.
	for _, from := range allTrackingStatuses {
		for _, to := range allTrackingStatuses {
			got := from.CanTransitionTo(to)
			want := allowed[edge{from, to}]
			if got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTrackingStatusValid(t *testing.T) {
	for _, status := range allTrackingStatuses {
		if !status.Valid() {
			t.Errorf("status %s must be valid", status)
		}
	}
	if domain.TrackingStatus("archived").Valid() {
		t.Error("unknown status must be invalid")
	}
}

func TestShipmentTrackingApplyStatus(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	finished := now.Add(-time.Hour)

	cases := []struct {
		name         string
		from         domain.TrackingStatus
		finishedAt   time.Time
		next         domain.TrackingStatus
		wantErr      bool
		wantFinished bool
	}{
		{
			name: "pending to in_progress",
			from: domain.TrackingStatusPending,
			next: domain.TrackingStatusInProgress,
		},
		{
			name:         "in_progress to completed sets finished_at",
			from:         domain.TrackingStatusInProgress,
			next:         domain.TrackingStatusCompleted,
			wantFinished: true,
		},
		{
			name:       "reopen completed clears finished_at",
			from:       domain.TrackingStatusCompleted,
			finishedAt: finished,
			next:       domain.TrackingStatusPending,
		},
		{
			name:       "cancel completed clears finished_at",
			from:       domain.TrackingStatusCompleted,
			finishedAt: finished,
			next:       domain.TrackingStatusCancelled,
		},
		{
			name:    "cancelled to in_progress rejected",
			from:    domain.TrackingStatusCancelled,
			next:    domain.TrackingStatusInProgress,
			wantErr: true,
		},
		{
			name:    "not_started to completed rejected",
			from:    domain.TrackingStatusNotStarted,
			next:    domain.TrackingStatusCompleted,
			wantErr: true,
		},
		{
			name:    "pending to completed rejected",
			from:    domain.TrackingStatusPending,
			next:    domain.TrackingStatusCompleted,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tracking := domain.ShipmentTracking{
				ID:         "tracking-1",
				ShipmentID: "shipment-1",
				StepNumber: 5,
				Status:     tc.from,
				FinishedAt: tc.finishedAt,
			}

			err := tracking.ApplyStatus(tc.next, now)
			if tc.wantErr {
				if !errors.Is(err, domain.ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				// Отклонённый переход не меняет состояние.
				if tracking.Status != tc.from || !tracking.FinishedAt.Equal(tc.finishedAt) {
					t.Fatalf("rejected transition must not mutate tracking: %+v", tracking)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tracking.Status != tc.next {
				t.Fatalf("status = %s, want %s", tracking.Status, tc.next)
			}
			if tc.wantFinished && !tracking.FinishedAt.Equal(now) {
				t.Fatalf("finished_at = %v, want %v", tracking.FinishedAt, now)
			}
			if !tc.wantFinished && !tracking.FinishedAt.IsZero() {
				t.Fatalf("finished_at must be cleared, got %v", tracking.FinishedAt)
			}
		})
	}
}
