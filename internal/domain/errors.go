package domain

import "errors"

var (
	// ErrImmutableStep возвращается при попытке изменить назначение обязательного этапа.
	ErrImmutableStep = errors.New("pinned step assignment is immutable")
	// ErrNotAssigned возвращается, если этап не назначен клиенту.
	ErrNotAssigned = errors.New("step is not assigned to the client")
	// ErrInvalidTransition сигнализирует о недопустимом переходе статуса отслеживания.
	ErrInvalidTransition = errors.New("tracking status transition is not allowed")
	// ErrEmptyNotes возвращается при попытке создать ревизию с пустым комментарием.
	ErrEmptyNotes = errors.New("revision notes must not be blank")
	// ErrTerminalState возвращается при изменении документа в терминальном статусе.
	ErrTerminalState = errors.New("document is in a terminal state")
	// ErrValidation — общая ошибка валидации входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrExternalService — ошибка обращения к внешнему сервису проверки списков.
	ErrExternalService = errors.New("external verification service failed")

	// Ошибка отсутствующего идентификатора клиента.
	ErrClientRequired = errors.New("client_id is required")
	// Ошибка отсутствующей категории документа.
	ErrCategoryRequired = errors.New("category_id is required")
	// Ошибка пустого названия документа.
	ErrDocumentNameRequired = errors.New("document name is required")
	// Ошибка некорректного направления груза.
	ErrDirectionInvalid = errors.New("shipment direction is invalid")
	// Ошибка, если дата документа позже даты истечения.
	ErrDateRangeInvalid = errors.New("document date is after expiration date")
	// Ошибка некорректного формата налогового идентификатора.
	ErrTaxIDInvalid = errors.New("tax id format is invalid")
	// Ошибка недопустимого решения при проверке документа.
	ErrReviewDecisionInvalid = errors.New("review decision must be approved or rejected")

	// ErrNotFound возвращается, если запись не найдена в репозитории.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists возвращается при нарушении уникальности записи.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsValidation проверяет, относится ли ошибка к классу ошибок валидации.
// Такие ошибки прерывают только запрошенную операцию и не меняют состояние.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrValidation,
		ErrImmutableStep,
		ErrNotAssigned,
		ErrEmptyNotes,
		ErrTerminalState,
		ErrClientRequired,
		ErrCategoryRequired,
		ErrDocumentNameRequired,
		ErrDirectionInvalid,
		ErrDateRangeInvalid,
		ErrTaxIDInvalid,
		ErrReviewDecisionInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNotFound проверяет, является ли ошибка отсутствием записи.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
