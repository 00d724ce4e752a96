package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// helper для базового документа досье.
func makeDocument() domain.ClientDocument {
	return domain.ClientDocument{
		ID:         "doc-1",
		ClientID:   "client-1",
		CategoryID: "cat-1",
		Name:       "Invoice 2024",
		Status:     domain.DocumentStatusPending,
	}
}

func TestApplyValidityRule(t *testing.T) {
	category := domain.DocumentCategory{
		ID:             "cat-1",
		Code:           "INVOICE",
		Required:       true,
		ValidityMonths: 6,
	}

	cases := []struct {
		name string
		mut  func(d *domain.ClientDocument)
		cat  domain.DocumentCategory
		want time.Time
	}{
		{
			// Месяц считается за 30 дней: 15 января + 180 дней = 13 июля.
			name: "derived from document date",
			mut: func(d *domain.ClientDocument) {
				d.DocumentDate = date(2024, time.January, 15)
			},
			cat:  category,
			want: date(2024, time.July, 13),
		},
		{
			name: "derived from upload moment without document date",
			mut:  func(d *domain.ClientDocument) {},
			cat:  category,
			want: date(2024, time.August, 28),
		},
		{
			name: "explicit expiration preserved",
			mut: func(d *domain.ClientDocument) {
				d.DocumentDate = date(2024, time.January, 15)
				d.ExpirationDate = date(2025, time.January, 1)
			},
			cat:  category,
			want: date(2025, time.January, 1),
		},
		{
			name: "indefinite category leaves expiration empty",
			mut: func(d *domain.ClientDocument) {
				d.DocumentDate = date(2024, time.January, 15)
			},
			cat:  domain.DocumentCategory{ID: "cat-2", Code: "CHARTER"},
			want: time.Time{},
		},
	}

	now := time.Date(2024, time.March, 1, 10, 30, 0, 0, time.UTC)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := makeDocument()
			tc.mut(&doc)

			doc.ApplyValidityRule(tc.cat, now)
			if !doc.ExpirationDate.Equal(tc.want) {
				t.Fatalf("expiration = %v, want %v", doc.ExpirationDate, tc.want)
			}
		})
	}
}

func TestExpiredAsOf(t *testing.T) {
	doc := makeDocument()
	doc.ExpirationDate = date(2024, time.July, 13)

	if doc.ExpiredAsOf(date(2024, time.July, 13)) {
		t.Fatal("document must not be expired on the expiration date itself")
	}
	if !doc.ExpiredAsOf(date(2024, time.August, 1)) {
		t.Fatal("document must be expired after the expiration date")
	}

	indefinite := makeDocument()
	if indefinite.ExpiredAsOf(date(2100, time.January, 1)) {
		t.Fatal("document without expiration date never expires")
	}
}

func TestClientDocumentValidateInvariants(t *testing.T) {
	doc := makeDocument()
	if errs := doc.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}

	cases := []struct {
		name string
		mut  func(d *domain.ClientDocument)
	}{
		{
			name: "no client",
			mut: func(d *domain.ClientDocument) {
				d.ClientID = ""
			},
		},
		{
			name: "no category",
			mut: func(d *domain.ClientDocument) {
				d.CategoryID = ""
			},
		},
		{
			name: "no name",
			mut: func(d *domain.ClientDocument) {
				d.Name = ""
			},
		},
		{
			name: "document date after expiration",
			mut: func(d *domain.ClientDocument) {
				d.DocumentDate = date(2024, time.May, 1)
				d.ExpirationDate = date(2024, time.April, 1)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mutDoc := makeDocument()
			tc.mut(&mutDoc)

			if len(mutDoc.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}
