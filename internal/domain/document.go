package domain

import "time"

// DocumentStatus описывает жизненный цикл документа досье.
type DocumentStatus string

const (
	// DocumentStatusPending — документ загружен и ожидает проверки.
	DocumentStatusPending DocumentStatus = "pending"
	// DocumentStatusApproved — документ принят проверяющим.
	DocumentStatusApproved DocumentStatus = "approved"
	// DocumentStatusRejected — документ отклонён проверяющим.
	DocumentStatusRejected DocumentStatus = "rejected"
	// DocumentStatusExpired — срок действия документа истёк; терминальный статус.
	DocumentStatusExpired DocumentStatus = "expired"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusApproved, DocumentStatusRejected, DocumentStatusExpired:
		return true
	default:
		return false
	}
}

// DocumentCategory — категория документов досье клиента.
type DocumentCategory struct {
	ID   string
	Code string
	Name string
	// Required помечает категорию, обязательную для полноты досье.
	Required bool
	// ValidityMonths — срок действия документов категории в месяцах; 0 — бессрочно.
	ValidityMonths int
	Order          int
}

// ClientDocument — документ досье клиента в одной из категорий.
type ClientDocument struct {
	ID         string
	ClientID   string
	CategoryID string
	Name       string
	Status     DocumentStatus
	// DocumentDate — дата выдачи документа; нулевое значение — дата не указана.
	DocumentDate time.Time
	// ExpirationDate — дата истечения; нулевое значение — документ бессрочный.
	ExpirationDate time.Time
	FileName       string
	FileSize       int64
	ReviewedBy     string
	ReviewedAt     time.Time
	ReviewNotes    string
	Version        int64
	CreatedAt      time.Time
}

// DateOnly приводит момент времени к полуночи UTC.
// Календарные поля документов сравниваются по дате, без времени суток.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ApplyValidityRule выводит дату истечения из срока действия категории.
// База — дата документа, а при её отсутствии дата загрузки; месяц считается
// за 30 дней. Явно заданная дата истечения не перезаписывается.
func (d *ClientDocument) ApplyValidityRule(category DocumentCategory, now time.Time) {
	if !d.ExpirationDate.IsZero() || category.ValidityMonths <= 0 {
		return
	}

	base := d.DocumentDate
	if base.IsZero() {
		base = now
	}
	d.ExpirationDate = DateOnly(base).AddDate(0, 0, category.ValidityMonths*30)
}

// ExpiredAsOf проверяет, истёк ли срок действия документа на указанную дату.
func (d *ClientDocument) ExpiredAsOf(today time.Time) bool {
	if d.ExpirationDate.IsZero() {
		return false
	}
	return d.ExpirationDate.Before(DateOnly(today))
}

// ValidateInvariants проверяет базовые инварианты документа и возвращает список замечаний.
func (d *ClientDocument) ValidateInvariants() []error {
	var errs []error

	if d.ClientID == "" {
		errs = append(errs, ErrClientRequired)
	}
	if d.CategoryID == "" {
		errs = append(errs, ErrCategoryRequired)
	}
	if d.Name == "" {
		errs = append(errs, ErrDocumentNameRequired)
	}
	if !d.DocumentDate.IsZero() && !d.ExpirationDate.IsZero() && d.DocumentDate.After(d.ExpirationDate) {
		errs = append(errs, ErrDateRangeInvalid)
	}

	return errs
}
