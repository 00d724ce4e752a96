package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Tracking события
	EventTypeTrackingStatusChanged EventType = "cts.tracking.status_changed"

	// Compliance события
	EventTypeDocumentExpired      EventType = "cts.compliance.document_expired"
	EventTypeVerificationRecorded EventType = "cts.compliance.verification_recorded"
	EventTypeNotificationCreated  EventType = "cts.compliance.notification_created"
)

// Topics для Kafka
const (
	TopicTrackingEvents   = "cts.tracking.events"
	TopicComplianceEvents = "cts.compliance.events"
	TopicDeadLetterQueue  = "cts.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// TrackingEvent представляет событие отслеживания груза
type TrackingEvent struct {
	EventType  EventType              `json:"event_type"`
	ShipmentID string                 `json:"shipment_id"`
	TrackingID string                 `json:"tracking_id"`
	StepNumber int                    `json:"step_number"`
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ComplianceEvent представляет событие комплаенс-контроля
type ComplianceEvent struct {
	EventType EventType              `json:"event_type"`
	ClientID  string                 `json:"client_id"`
	SubjectID string                 `json:"subject_id"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewTrackingEvent создает новое событие отслеживания
func NewTrackingEvent(eventType EventType, shipmentID, trackingID string, stepNumber int, status string, metadata map[string]interface{}) *TrackingEvent {
	return &TrackingEvent{
		EventType:  eventType,
		ShipmentID: shipmentID,
		TrackingID: trackingID,
		StepNumber: stepNumber,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}

// NewComplianceEvent создает новое событие комплаенс-контроля
func NewComplianceEvent(eventType EventType, clientID, subjectID string, metadata map[string]interface{}) *ComplianceEvent {
	return &ComplianceEvent{
		EventType: eventType,
		ClientID:  clientID,
		SubjectID: subjectID,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}
