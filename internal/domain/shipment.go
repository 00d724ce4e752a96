package domain

import "time"

// Direction описывает направление перемещения груза.
type Direction string

const (
	// DirectionInbound — ввоз (импортная операция).
	DirectionInbound Direction = "inbound"
	// DirectionOutbound — вывоз (экспортная операция).
	DirectionOutbound Direction = "outbound"
)

// Valid проверяет, что направление относится к поддерживаемым значениям.
func (d Direction) Valid() bool {
	switch d {
	case DirectionInbound, DirectionOutbound:
		return true
	default:
		return false
	}
}

// Shipment описывает таможенную операцию по грузу клиента.
type Shipment struct {
	ID       string
	ClientID string
	// Reference — номер операции (фолио) во внешнем документообороте.
	Reference string
	Direction Direction
	// RegimenCode — код таможенного режима, нормализованный по таблице соответствий.
	RegimenCode string
	CreatedAt   time.Time
}

// ValidateInvariants проверяет базовые инварианты операции и возвращает список замечаний.
func (s *Shipment) ValidateInvariants() []error {
	var errs []error

	if s.ClientID == "" {
		errs = append(errs, ErrClientRequired)
	}
	if !s.Direction.Valid() {
		errs = append(errs, ErrDirectionInvalid)
	}

	return errs
}
