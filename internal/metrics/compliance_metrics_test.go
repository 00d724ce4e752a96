package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewComplianceMetrics(t *testing.T) {
	metrics := newComplianceMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("newComplianceMetricsWithRegisterer should not return nil")
	}

	if metrics.jobRuns == nil {
		t.Error("jobRuns counter vec should not be nil")
	}

	if metrics.jobFailures == nil {
		t.Error("jobFailures counter vec should not be nil")
	}

	if metrics.jobDuration == nil {
		t.Error("jobDuration histogram vec should not be nil")
	}

	if metrics.documentsExpired == nil {
		t.Error("documentsExpired counter should not be nil")
	}

	if metrics.notificationsCreated == nil {
		t.Error("notificationsCreated counter should not be nil")
	}

	if metrics.notificationsRepeated == nil {
		t.Error("notificationsRepeated counter should not be nil")
	}

	if metrics.dossierTransitions == nil {
		t.Error("dossierTransitions counter should not be nil")
	}

	if metrics.verifications == nil {
		t.Error("verifications counter vec should not be nil")
	}

	if metrics.verificationCacheHits == nil {
		t.Error("verificationCacheHits counter should not be nil")
	}

	if metrics.trackingTransitions == nil {
		t.Error("trackingTransitions counter vec should not be nil")
	}

	if metrics.outboxEvents == nil {
		t.Error("outboxEvents counter should not be nil")
	}

	if metrics.activeJobs == nil {
		t.Error("activeJobs gauge should not be nil")
	}
}

func TestNewComplianceMetricsReregister(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := newComplianceMetricsWithRegisterer(reg)
	// Повторная регистрация возвращает уже существующие коллекторы
	second := newComplianceMetricsWithRegisterer(reg)

	if first.documentsExpired != second.documentsExpired {
		t.Error("expected shared documentsExpired collector on reregistration")
	}

	if first.outboxEvents != second.outboxEvents {
		t.Error("expected shared outboxEvents collector on reregistration")
	}
}

func TestRecordJobLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newComplianceMetricsWithRegisterer(reg)

	metrics.RecordJobStarted("expiration_sweep")
	metrics.RecordJobStarted("completeness")

	gaugeMetric := &dto.Metric{}
	if err := metrics.activeJobs.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gaugeMetric.Gauge.GetValue() != 2.0 {
		t.Errorf("expected 2 active jobs, got %f", gaugeMetric.Gauge.GetValue())
	}

	metrics.RecordJobFinished("expiration_sweep", 150*time.Millisecond)

	gaugeMetric = &dto.Metric{}
	if err := metrics.activeJobs.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gaugeMetric.Gauge.GetValue() != 1.0 {
		t.Errorf("expected 1 active job, got %f", gaugeMetric.Gauge.GetValue())
	}

	runsMetric := &dto.Metric{}
	runs := metrics.jobRuns.WithLabelValues("expiration_sweep")
	if err := runs.Write(runsMetric); err != nil {
		t.Fatalf("failed to write runs metric: %v", err)
	}
	if runsMetric.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 run for expiration_sweep, got %f", runsMetric.Counter.GetValue())
	}

	durationMetric := &dto.Metric{}
	observer := metrics.jobDuration.WithLabelValues("expiration_sweep")
	if err := observer.(prometheus.Histogram).Write(durationMetric); err != nil {
		t.Fatalf("failed to write duration metric: %v", err)
	}
	if durationMetric.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 duration sample, got %d", durationMetric.Histogram.GetSampleCount())
	}

	metrics.RecordJobFailed("completeness")

	failuresMetric := &dto.Metric{}
	failures := metrics.jobFailures.WithLabelValues("completeness")
	if err := failures.Write(failuresMetric); err != nil {
		t.Fatalf("failed to write failures metric: %v", err)
	}
	if failuresMetric.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 failure for completeness, got %f", failuresMetric.Counter.GetValue())
	}
}

func TestRecordDocumentsExpired(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newComplianceMetricsWithRegisterer(reg)

	metrics.RecordDocumentsExpired(3)
	metrics.RecordDocumentsExpired(2)
	// Пустой проход не двигает счётчик
	metrics.RecordDocumentsExpired(0)
	metrics.RecordDocumentsExpired(-1)

	metric := &dto.Metric{}
	if err := metrics.documentsExpired.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 5.0 {
		t.Errorf("expected counter value 5.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordNotificationOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newComplianceMetricsWithRegisterer(reg)

	metrics.RecordNotificationCreated()
	metrics.RecordNotificationCreated()
	metrics.RecordNotificationRepeated()

	createdMetric := &dto.Metric{}
	if err := metrics.notificationsCreated.Write(createdMetric); err != nil {
		t.Fatalf("failed to write created metric: %v", err)
	}
	if createdMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 created notifications, got %f", createdMetric.Counter.GetValue())
	}

	repeatedMetric := &dto.Metric{}
	if err := metrics.notificationsRepeated.Write(repeatedMetric); err != nil {
		t.Fatalf("failed to write repeated metric: %v", err)
	}
	if repeatedMetric.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 repeated notification, got %f", repeatedMetric.Counter.GetValue())
	}
}

func TestRecordVerification(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newComplianceMetricsWithRegisterer(reg)

	metrics.RecordVerification("CLEAN")
	metrics.RecordVerification("CLEAN")
	metrics.RecordVerification("DEFINITIVE")
	metrics.RecordVerificationCacheHit()

	cleanMetric := &dto.Metric{}
	clean := metrics.verifications.WithLabelValues("CLEAN")
	if err := clean.Write(cleanMetric); err != nil {
		t.Fatalf("failed to write clean metric: %v", err)
	}
	if cleanMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 clean verifications, got %f", cleanMetric.Counter.GetValue())
	}

	definitiveMetric := &dto.Metric{}
	definitive := metrics.verifications.WithLabelValues("DEFINITIVE")
	if err := definitive.Write(definitiveMetric); err != nil {
		t.Fatalf("failed to write definitive metric: %v", err)
	}
	if definitiveMetric.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 definitive verification, got %f", definitiveMetric.Counter.GetValue())
	}

	hitsMetric := &dto.Metric{}
	if err := metrics.verificationCacheHits.Write(hitsMetric); err != nil {
		t.Fatalf("failed to write cache hits metric: %v", err)
	}
	if hitsMetric.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 cache hit, got %f", hitsMetric.Counter.GetValue())
	}
}

func TestRecordTrackingTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newComplianceMetricsWithRegisterer(reg)

	metrics.RecordTrackingTransition("IN_PROGRESS")
	metrics.RecordTrackingTransition("IN_PROGRESS")
	metrics.RecordTrackingTransition("COMPLETED")

	inProgressMetric := &dto.Metric{}
	inProgress := metrics.trackingTransitions.WithLabelValues("IN_PROGRESS")
	if err := inProgress.Write(inProgressMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if inProgressMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 transitions to IN_PROGRESS, got %f", inProgressMetric.Counter.GetValue())
	}
}

func TestRecordOutboxEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newComplianceMetricsWithRegisterer(reg)

	metrics.RecordOutboxEvent()
	metrics.RecordOutboxEvent()

	eventsMetric := &dto.Metric{}
	if err := metrics.outboxEvents.Write(eventsMetric); err != nil {
		t.Fatalf("failed to write events metric: %v", err)
	}
	if eventsMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 outbox events, got %f", eventsMetric.Counter.GetValue())
	}
}

func TestRecordDossierTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newComplianceMetricsWithRegisterer(reg)

	metrics.RecordDossierTransition()
	metrics.RecordDossierTransition()
	metrics.RecordDossierTransition()

	metric := &dto.Metric{}
	if err := metrics.dossierTransitions.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 3.0 {
		t.Errorf("expected counter value 3.0, got %f", metric.Counter.GetValue())
	}
}
