package domain

import "time"

// TrackingStatus описывает жизненный цикл этапа отслеживания груза.
type TrackingStatus string

const (
	// TrackingStatusNotStarted — виртуальный статус: работа по этапу не начата,
	// записи в хранилище нет. Никогда не сохраняется.
	TrackingStatusNotStarted TrackingStatus = "not_started"
	// TrackingStatusPending — этап ожидает выполнения.
	TrackingStatusPending TrackingStatus = "pending"
	// TrackingStatusInProgress — этап в работе.
	TrackingStatusInProgress TrackingStatus = "in_progress"
	// TrackingStatusCompleted — этап завершён; фиксируется время завершения.
	TrackingStatusCompleted TrackingStatus = "completed"
	// TrackingStatusCancelled — этап отменён.
	TrackingStatusCancelled TrackingStatus = "cancelled"
)

// trackingTransitions задаёт допустимые переходы статусов.
// Возврат из completed — явное переоткрытие этапа вручную;
// повторная отмена отменённого этапа допустима и ничего не меняет.
var trackingTransitions = map[TrackingStatus][]TrackingStatus{
	TrackingStatusNotStarted: {TrackingStatusPending, TrackingStatusCancelled},
	TrackingStatusPending:    {TrackingStatusInProgress, TrackingStatusCancelled},
	TrackingStatusInProgress: {TrackingStatusCompleted, TrackingStatusCancelled},
	TrackingStatusCompleted:  {TrackingStatusPending, TrackingStatusInProgress, TrackingStatusCancelled},
	TrackingStatusCancelled:  {TrackingStatusCancelled},
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s TrackingStatus) Valid() bool {
	switch s {
	case TrackingStatusNotStarted, TrackingStatusPending, TrackingStatusInProgress,
		TrackingStatusCompleted, TrackingStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода в статус next.
func (s TrackingStatus) CanTransitionTo(next TrackingStatus) bool {
	for _, allowed := range trackingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ShipmentTracking — запись отслеживания одного этапа груза.
// На пару (ShipmentID, StepNumber) существует не более одной записи.
type ShipmentTracking struct {
	ID         string
	ShipmentID string
	StepNumber int
	Status     TrackingStatus
	// FinishedAt заполняется при переходе в completed и сбрасывается при выходе из него.
	// Нулевое значение означает, что этап не завершён.
	FinishedAt time.Time
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ApplyStatus выполняет переход статуса с побочными эффектами по времени завершения.
// Возвращает ErrInvalidTransition, если переход не входит в таблицу допустимых.
func (t *ShipmentTracking) ApplyStatus(next TrackingStatus, now time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}

	if next == TrackingStatusCompleted {
		t.FinishedAt = now
	} else if t.Status == TrackingStatusCompleted {
		// Переоткрытие или отмена завершённого этапа сбрасывает время завершения.
		t.FinishedAt = time.Time{}
	}
	t.Status = next
	t.UpdatedAt = now

	return nil
}

// Progress описывает сводку продвижения груза по ожидаемым этапам.
type Progress struct {
	CompletedCount int
	TotalCount     int
	// Percent — округлённая доля завершённых этапов; 0 при пустом плане.
	Percent int
	// CurrentStep — первый незавершённый этап в ожидаемом порядке; nil, если все завершены.
	CurrentStep *Step
}
