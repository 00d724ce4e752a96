package domain

import "time"

const (
	// StepOrderMin — фиксированная позиция первого обязательного этапа в плане клиента.
	StepOrderMin uint = 0
	// StepOrderMax — сентинельная позиция последнего обязательного этапа.
	// Диапазон 1..n остаётся свободным для переупорядочиваемых этапов.
	StepOrderMax uint = 9999
)

// Step описывает этап процесса таможенного оформления из глобального каталога.
type Step struct {
	ID string
	// Number — уникальный порядковый номер этапа; 0 означает, что номер не назначен.
	Number      int
	Description string
	// AppliesInbound и AppliesOutbound задают применимость этапа к направлению груза.
	AppliesInbound  bool
	AppliesOutbound bool
	// Pinned помечает обязательный этап: он присутствует в каждом плане,
	// всегда активен и не может быть удалён или переупорядочен.
	Pinned bool
}

// AppliesTo проверяет применимость этапа к направлению груза.
func (s Step) AppliesTo(direction Direction) bool {
	switch direction {
	case DirectionInbound:
		return s.AppliesInbound
	case DirectionOutbound:
		return s.AppliesOutbound
	default:
		return false
	}
}

// ClientStepAssignment связывает клиента с этапом каталога.
// Пара (ClientID, StepID) уникальна.
type ClientStepAssignment struct {
	ClientID  string
	StepID    string
	Order     uint
	Active    bool
	CreatedAt time.Time
}

// PlanEntry — элемент плана этапов клиента: этап каталога с позицией и флагом активности.
type PlanEntry struct {
	Step   Step
	Order  uint
	Active bool
}

// AssignMode задаёт режим массового назначения этапов клиенту.
type AssignMode string

const (
	// AssignModeInboundOnly — назначить этапы, применимые к ввозу.
	AssignModeInboundOnly AssignMode = "inbound_only"
	// AssignModeOutboundOnly — назначить этапы, применимые к вывозу.
	AssignModeOutboundOnly AssignMode = "outbound_only"
	// AssignModeAll — назначить все необязательные этапы каталога.
	AssignModeAll AssignMode = "all"
	// AssignModeNone — оставить клиенту только обязательные этапы.
	AssignModeNone AssignMode = "none"
)

// Valid проверяет, что режим относится к поддерживаемым значениям.
func (m AssignMode) Valid() bool {
	switch m {
	case AssignModeInboundOnly, AssignModeOutboundOnly, AssignModeAll, AssignModeNone:
		return true
	default:
		return false
	}
}

// ToggleResult описывает исход переключения этапа в плане клиента.
type ToggleResult string

const (
	// ToggleAdded — назначение создано.
	ToggleAdded ToggleResult = "added"
	// ToggleRemoved — назначение удалено.
	ToggleRemoved ToggleResult = "removed"
)
