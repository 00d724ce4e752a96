package domain

import (
	"context"
	"time"
)

// ListVerifier описывает внешний сервис проверки идентификатора по спискам
// нарушителей. Единственная блокирующая внешняя зависимость ядра: вызов
// обязан уважать таймаут контекста.
type ListVerifier interface {
	// Verify проверяет нормализованный налоговый идентификатор.
	Verify(ctx context.Context, taxID string) (VerificationResult, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// ComplianceJob задаёт константы сверок для метрик/логов.
type ComplianceJob string

const (
	ComplianceJobExpiration   ComplianceJob = "expiration_sweep"
	ComplianceJobCompleteness ComplianceJob = "completeness"
	ComplianceJobVerification ComplianceJob = "list_verification"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
