package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka.
// При пустом topic сообщение маршрутизируется по типу события:
// события отслеживания и комплаенса уходят в свои топики.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
// Пустой topic включает маршрутизацию по префиксу типа события.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	topic := p.topic
	if topic == "" {
		topic = topicForEvent(event.EventType)
	}

	envelope := struct {
		EventID       string          `json:"event_id"`
		EventType     string          `json:"event_type"`
		AggregateType string          `json:"aggregate_type"`
		AggregateID   string          `json:"aggregate_id"`
		Payload       json.RawMessage `json:"payload"`
		OccurredAt    time.Time       `json:"occurred_at"`
	}{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(event.Payload),
		OccurredAt:    time.Now().UTC(),
	}

	return p.producer.PublishEvent(topic, key, envelope)
}

// topicForEvent выбирает topic по типу события.
func topicForEvent(eventType string) string {
	if strings.HasPrefix(eventType, "cts.tracking.") {
		return TopicTrackingEvents
	}
	return TopicComplianceEvents
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
