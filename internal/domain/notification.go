package domain

import "time"

// NotificationType задаёт тип уведомления; участвует в ключе дедупликации.
type NotificationType string

const (
	// NotificationDocumentExpiring — документ скоро истечёт.
	NotificationDocumentExpiring NotificationType = "document_expiring"
	// NotificationDocumentExpired — срок действия документа истёк.
	NotificationDocumentExpired NotificationType = "document_expired"
)

// SubjectKind описывает вид сущности, к которой относится уведомление.
type SubjectKind string

const (
	// SubjectDocument — уведомление о документе досье.
	SubjectDocument SubjectKind = "document"
	// SubjectClient — уведомление о клиенте.
	SubjectClient SubjectKind = "client"
	// SubjectOther — уведомление без привязки к типизированной сущности.
	SubjectOther SubjectKind = "other"
)

// Valid проверяет, что вид субъекта относится к поддерживаемым значениям.
func (k SubjectKind) Valid() bool {
	switch k {
	case SubjectDocument, SubjectClient, SubjectOther:
		return true
	default:
		return false
	}
}

// SubjectRef — типизированная ссылка на субъект уведомления.
type SubjectRef struct {
	Kind SubjectKind
	ID   string
}

// Priority описывает важность уведомления.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid проверяет, что приоритет относится к поддерживаемым значениям.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Notification — уведомление о состоянии комплаенса.
// Инвариант: на пару (Type, Subject) существует не более одного уведомления,
// создание идёт строго через get-or-create по этому ключу.
type Notification struct {
	ID       string
	Type     NotificationType
	Subject  SubjectRef
	Title    string
	Message  string
	Priority Priority
	IsRead   bool
	// ReadAt — момент прочтения; нулевое значение — не прочитано.
	ReadAt    time.Time
	CreatedAt time.Time
}
