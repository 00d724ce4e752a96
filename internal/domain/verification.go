package domain

import "time"

// VerificationMethod описывает способ проверки клиента по внешним спискам.
type VerificationMethod string

const (
	// VerificationMethodAutomatic — плановая автоматическая проверка.
	VerificationMethodAutomatic VerificationMethod = "automatic"
	// VerificationMethodManual — проверка, запущенная оператором вручную.
	VerificationMethodManual VerificationMethod = "manual"
)

// VerificationStatus описывает итог проверки по внешним спискам.
type VerificationStatus string

const (
	// VerificationStatusClean — идентификатор не найден ни в одном списке.
	VerificationStatusClean VerificationStatus = "clean"
	// VerificationStatusPresumed — идентификатор в списке предполагаемых нарушителей.
	VerificationStatusPresumed VerificationStatus = "presumed"
	// VerificationStatusDefinitive — идентификатор в окончательном списке нарушителей.
	VerificationStatusDefinitive VerificationStatus = "definitive"
	// VerificationStatusError — проверка не выполнена из-за ошибки.
	VerificationStatusError VerificationStatus = "error"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationStatusClean, VerificationStatusPresumed,
		VerificationStatusDefinitive, VerificationStatusError:
		return true
	default:
		return false
	}
}

// DeriveVerificationStatus выводит статус из признаков попадания в списки.
// Окончательный список имеет приоритет над списком предполагаемых.
func DeriveVerificationStatus(inDefinitive, inPresumed bool) VerificationStatus {
	switch {
	case inDefinitive:
		return VerificationStatusDefinitive
	case inPresumed:
		return VerificationStatusPresumed
	default:
		return VerificationStatusClean
	}
}

// ExternalListVerification — запись истории проверок клиента по внешним спискам.
// История append-only.
type ExternalListVerification struct {
	ID       string
	ClientID string
	// TaxID — нормализованный идентификатор, который фактически проверялся.
	TaxID            string
	InDefinitiveList bool
	InPresumedList   bool
	Method           VerificationMethod
	Status           VerificationStatus
	// FromCache помечает результат, взятый из кэша без обращения к внешнему сервису.
	FromCache  bool
	Notes      string
	VerifiedAt time.Time
}

// VerificationResult — результат обращения к внешнему сервису проверки списков.
type VerificationResult struct {
	InDefinitiveList bool
	InPresumedList   bool
	// FromCache — результат получен из кэша с суточным окном свежести.
	FromCache bool
	CheckedAt time.Time
}
