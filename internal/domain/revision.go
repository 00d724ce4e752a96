package domain

import "time"

// Revision — запись журнала ручных вмешательств по этапу отслеживания.
// Журнал append-only: ревизии не изменяются и не удаляются.
type Revision struct {
	ID         string
	TrackingID string
	// AssignedTo — исполнитель, на которого оформлена ревизия.
	AssignedTo string
	// StepNumber — денормализованная копия номера этапа на момент ревизии.
	StepNumber int
	Notes      string
	// Status — текстовый снимок статуса; может отличаться от текущего статуса отслеживания.
	Status string
	// OccurredAt — зафиксированные дата и время вмешательства.
	OccurredAt time.Time
	CreatedAt  time.Time
}
