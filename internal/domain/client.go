package domain

import (
	"regexp"
	"strings"
	"time"
)

// Client — профиль клиента с кэшированной сводкой комплаенса.
type Client struct {
	ID      string
	Company string
	// TaxID — налоговый идентификатор (RFC) для проверки по внешним спискам.
	TaxID string
	// Visible: скрытые клиенты исключаются из сверок и проверок.
	Visible bool
	// DossierComplete — кэш полноты досье; пересчитывается сверкой полноты.
	// Инвариант: кэш равен функции от документов по состоянию на LastVerifiedAt.
	DossierComplete bool
	LastVerifiedAt  time.Time
	Version         int64
	CreatedAt       time.Time
}

// Форматы налогового идентификатора: юридические лица — 12 знаков,
// физические лица — 13 знаков.
var (
	taxIDMoralPattern  = regexp.MustCompile(`^[A-Z&Ñ]{3}[0-9]{6}[A-Z0-9]{3}$`)
	taxIDFisicaPattern = regexp.MustCompile(`^[A-Z&Ñ]{4}[0-9]{6}[A-Z0-9]{3}$`)
)

// NormalizeTaxID приводит идентификатор к каноническому виду:
// верхний регистр, только латинские буквы и цифры.
func NormalizeTaxID(taxID string) string {
	taxID = strings.ToUpper(strings.TrimSpace(taxID))

	var b strings.Builder
	b.Grow(len(taxID))
	for _, r := range taxID {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidTaxID проверяет формат уже нормализованного идентификатора.
func ValidTaxID(taxID string) bool {
	return taxIDMoralPattern.MatchString(taxID) || taxIDFisicaPattern.MatchString(taxID)
}
