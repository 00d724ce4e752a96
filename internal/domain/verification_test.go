package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

func TestDeriveVerificationStatus(t *testing.T) {
	cases := []struct {
		name         string
		inDefinitive bool
		inPresumed   bool
		want         domain.VerificationStatus
	}{
		{
			name: "clean",
			want: domain.VerificationStatusClean,
		},
		{
			name:       "presumed only",
			inPresumed: true,
			want:       domain.VerificationStatusPresumed,
		},
		{
			name:         "definitive only",
			inDefinitive: true,
			want:         domain.VerificationStatusDefinitive,
		},
		{
			// Окончательный список важнее списка предполагаемых.
			name:         "definitive wins over presumed",
			inDefinitive: true,
			inPresumed:   true,
			want:         domain.VerificationStatusDefinitive,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.DeriveVerificationStatus(tc.inDefinitive, tc.inPresumed)
			if got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestVerificationStatusValid(t *testing.T) {
	valid := []domain.VerificationStatus{
		domain.VerificationStatusClean,
		domain.VerificationStatusPresumed,
		domain.VerificationStatusDefinitive,
		domain.VerificationStatusError,
	}
	for _, status := range valid {
		if !status.Valid() {
			t.Errorf("status %s must be valid", status)
		}
	}
	if domain.VerificationStatus("pending").Valid() {
		t.Error("unknown status must be invalid")
	}
}
