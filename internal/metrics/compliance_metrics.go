package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ComplianceMetrics содержит метрики джобов комплаенса, отслеживания и outbox.
type ComplianceMetrics struct {
	// Счётчики запусков джобов
	jobRuns     *prometheus.CounterVec
	jobFailures *prometheus.CounterVec

	// Гистограмма времени выполнения джобов
	jobDuration *prometheus.HistogramVec

	// Счётчики доменных исходов
	documentsExpired      prometheus.Counter
	notificationsCreated  prometheus.Counter
	notificationsRepeated prometheus.Counter
	dossierTransitions    prometheus.Counter
	verifications         *prometheus.CounterVec
	verificationCacheHits prometheus.Counter
	trackingTransitions   *prometheus.CounterVec

	// Счётчик поставленных в outbox событий,
	// бэклог публикации считает сам outbox worker
	outboxEvents prometheus.Counter

	// Gauge для выполняющихся джобов
	activeJobs prometheus.Gauge
}

// NewComplianceMetrics создаёт новый экземпляр метрик.
func NewComplianceMetrics() *ComplianceMetrics {
	return newComplianceMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newComplianceMetricsWithRegisterer(registerer prometheus.Registerer) *ComplianceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ComplianceMetrics{
		jobRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cts_compliance_job_runs_total",
			Help: "Total number of compliance job runs",
		}, []string{"job"}),
		jobFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cts_compliance_job_failures_total",
			Help: "Total number of failed compliance job runs",
		}, []string{"job"}),
		jobDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "cts_compliance_job_duration_seconds",
			Help:    "Duration of compliance job runs in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		}, []string{"job"}),
		documentsExpired: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cts_documents_expired_total",
			Help: "Total number of documents marked expired by the sweep",
		}),
		notificationsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cts_notifications_created_total",
			Help: "Total number of notifications created",
		}),
		notificationsRepeated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cts_notifications_repeated_total",
			Help: "Total number of notification creations deduplicated by key",
		}),
		dossierTransitions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cts_dossier_transitions_total",
			Help: "Total number of client dossier completeness transitions",
		}),
		verifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cts_list_verifications_total",
			Help: "Total number of external list verifications by status",
		}, []string{"status"}),
		verificationCacheHits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cts_verification_cache_hits_total",
			Help: "Total number of list verifications answered from cache",
		}),
		trackingTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cts_tracking_transitions_total",
			Help: "Total number of tracking status transitions by target status",
		}, []string{"status"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cts_outbox_events_total",
			Help: "Total number of events enqueued to the outbox",
		}),
		activeJobs: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cts_compliance_active_jobs",
			Help: "Number of currently running compliance jobs",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordJobStarted отмечает запуск джоба.
func (m *ComplianceMetrics) RecordJobStarted(job string) {
	m.jobRuns.WithLabelValues(job).Inc()
	m.activeJobs.Inc()
}

// RecordJobFinished отмечает завершение джоба и его длительность.
func (m *ComplianceMetrics) RecordJobFinished(job string, duration time.Duration) {
	m.activeJobs.Dec()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordJobFailed увеличивает счётчик неудачных запусков джоба.
func (m *ComplianceMetrics) RecordJobFailed(job string) {
	m.jobFailures.WithLabelValues(job).Inc()
}

// RecordDocumentsExpired учитывает документы, помеченные просроченными за один проход.
func (m *ComplianceMetrics) RecordDocumentsExpired(count int) {
	if count <= 0 {
		return
	}
	m.documentsExpired.Add(float64(count))
}

// RecordNotificationCreated увеличивает счётчик созданных уведомлений.
func (m *ComplianceMetrics) RecordNotificationCreated() {
	m.notificationsCreated.Inc()
}

// RecordNotificationRepeated увеличивает счётчик дедуплицированных уведомлений.
func (m *ComplianceMetrics) RecordNotificationRepeated() {
	m.notificationsRepeated.Inc()
}

// RecordDossierTransition увеличивает счётчик смен полноты досье.
func (m *ComplianceMetrics) RecordDossierTransition() {
	m.dossierTransitions.Inc()
}

// RecordVerification учитывает проверку по внешним спискам с итоговым статусом.
func (m *ComplianceMetrics) RecordVerification(status string) {
	m.verifications.WithLabelValues(status).Inc()
}

// RecordVerificationCacheHit увеличивает счётчик ответов из кэша.
func (m *ComplianceMetrics) RecordVerificationCacheHit() {
	m.verificationCacheHits.Inc()
}

// RecordTrackingTransition учитывает переход статуса отслеживания.
func (m *ComplianceMetrics) RecordTrackingTransition(status string) {
	m.trackingTransitions.WithLabelValues(status).Inc()
}

// RecordOutboxEvent увеличивает счётчик поставленных в outbox событий.
func (m *ComplianceMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
