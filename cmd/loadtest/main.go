package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	"github.com/vladislavdragonenkov/cts/internal/service/revision"
	"github.com/vladislavdragonenkov/cts/internal/service/tracking"
	"github.com/vladislavdragonenkov/cts/internal/storage/memory"
	"github.com/vladislavdragonenkov/cts/internal/storage/postgres"
)

const loadStepNumber = 2

type loadMode string

const (
	modeTrack       loadMode = "track"
	modeTrackRevise loadMode = "track-revise"
	modeContend     loadMode = "contend"
)

type config struct {
	storage      string
	dsn          string
	total        int
	totalSet     bool
	duration     time.Duration
	concurrency  int
	mode         loadMode
	reviseRate   int
	shipmentPool int
	clientTag    string
	outputPath   string
}

type outcome string

const (
	outcomeOK                outcome = "ok"
	outcomeConflict          outcome = "conflict"
	outcomeInvalidTransition outcome = "invalid_transition"
	outcomeNotFound          outcome = "not_found"
	outcomeAlreadyExists     outcome = "already_exists"
	outcomeValidation        outcome = "validation"
	outcomeError             outcome = "error"
)

func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeOK
	case domain.IsVersionConflict(err):
		return outcomeConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return outcomeInvalidTransition
	case errors.Is(err, domain.ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return outcomeAlreadyExists
	case errors.Is(err, domain.ErrValidation):
		return outcomeValidation
	default:
		return outcomeError
	}
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Outcomes  map[string]int64 `json:"outcomes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	outcomes  map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

func (c *collector) record(method string, latency time.Duration, result outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{
			outcomes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if result == outcomeOK {
		stats.success++
	} else {
		stats.failed++
	}
	stats.outcomes[string(result)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) snapshot(name string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[name]
	if !ok {
		return methodReport{}, false
	}

	outcomesCopy := make(map[string]int64, len(stats.outcomes))
	for result, count := range stats.outcomes {
		outcomesCopy[result] = count
	}

	return methodReport{
		Calls:     stats.calls,
		Success:   stats.success,
		Failed:    stats.failed,
		ErrorRate: ratio(stats.failed, stats.calls),
		Outcomes:  outcomesCopy,
		LatencyMs: buildLatencySummary(stats.latencies),
	}, true
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	scenarioStats := c.methods["scenario"]
	if scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		outcomesCopy := make(map[string]int64, len(stats.outcomes))
		for res, count := range stats.outcomes {
			outcomesCopy[res] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Outcomes:  outcomesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var durationValue string

	flag.StringVar(&cfg.storage, "storage", "memory", "storage backend: memory | postgres")
	flag.StringVar(&cfg.dsn, "dsn", "", "postgres dsn (fallback: CTS_POSTGRES_DSN)")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&modeValue, "mode", string(modeTrack), "load mode: track | track-revise | contend")
	flag.IntVar(&cfg.reviseRate, "revise-rate", 0, "revision probability in percent for track mode (0..100)")
	flag.IntVar(&cfg.shipmentPool, "shipments", 8, "shared shipment pool size for contend mode")
	flag.StringVar(&cfg.clientTag, "client-tag", "load", "seeded client id suffix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	cfg.storage = strings.ToLower(strings.TrimSpace(cfg.storage))
	switch cfg.storage {
	case "memory":
	case "postgres":
		if strings.TrimSpace(cfg.dsn) == "" {
			cfg.dsn = os.Getenv("CTS_POSTGRES_DSN")
		}
		if strings.TrimSpace(cfg.dsn) == "" {
			return cfg, errors.New("postgres storage requires -dsn or CTS_POSTGRES_DSN")
		}
	default:
		return cfg, fmt.Errorf("unsupported storage driver: %s", cfg.storage)
	}

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.reviseRate < 0 || cfg.reviseRate > 100 {
		return cfg, errors.New("revise-rate must be between 0 and 100")
	}
	if cfg.shipmentPool <= 0 {
		return cfg, errors.New("shipments must be > 0")
	}
	if strings.TrimSpace(cfg.clientTag) == "" {
		return cfg, errors.New("client-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeTrack:
		return modeTrack, nil
	case modeTrackRevise:
		return modeTrackRevise, nil
	case modeContend:
		return modeContend, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

type dependencies struct {
	shipments domain.ShipmentRepository
	steps     domain.StepRepository
	clients   domain.ClientRepository
	tracking  tracking.Service
	revisions revision.Service
	closeFn   func() error
}

func (d *dependencies) close() error {
	if d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

func buildDependencies(ctx context.Context, cfg config) (*dependencies, error) {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "loadtest")

	deps := &dependencies{}
	switch cfg.storage {
	case "memory":
		trackings := memory.NewTrackingRepository()
		assignments := memory.NewStepAssignmentRepository()
		outbox := memory.NewOutboxRepository()
		deps.shipments = memory.NewShipmentRepository()
		deps.steps = memory.NewStepRepository()
		deps.clients = memory.NewClientRepository()
		deps.tracking = tracking.NewServiceWithoutMetrics(deps.shipments, trackings, deps.steps, assignments, outbox, logger)
		deps.revisions = revision.NewServiceWithoutMetrics(trackings, memory.NewRevisionRepository(trackings), outbox, logger)
	case "postgres":
		store, err := postgres.Open(ctx, cfg.dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		trackings := postgres.NewTrackingRepository(store)
		assignments := postgres.NewStepAssignmentRepository(store)
		outbox := postgres.NewOutboxRepository(store)
		deps.shipments = postgres.NewShipmentRepository(store)
		deps.steps = postgres.NewStepRepository(store)
		deps.clients = postgres.NewClientRepository(store)
		deps.tracking = tracking.NewServiceWithoutMetrics(deps.shipments, trackings, deps.steps, assignments, outbox, logger)
		deps.revisions = revision.NewServiceWithoutMetrics(trackings, postgres.NewRevisionRepository(store), outbox, logger)
		deps.closeFn = store.Close
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.storage)
	}

	return deps, nil
}

func seed(deps *dependencies, cfg config) ([]string, error) {
	catalog := []domain.Step{
		{ID: "load-step-opening", Number: 1, Description: "Apertura de expediente", AppliesInbound: true, AppliesOutbound: true, Pinned: true},
		{ID: "load-step-docs", Number: loadStepNumber, Description: "Revisión documental", AppliesInbound: true, AppliesOutbound: true},
		{ID: "load-step-delivery", Number: 5, Description: "Entrega de mercancía", AppliesInbound: true, AppliesOutbound: true},
	}
	for _, step := range catalog {
		if err := deps.steps.Create(step); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, fmt.Errorf("seed step %d: %w", step.Number, err)
		}
	}

	// Клиент скрыт, чтобы нагрузочные данные не попадали в сверки.
	client := domain.Client{
		ID:        loadClientID(cfg),
		Company:   "Cliente de prueba de carga",
		TaxID:     "LOA680524P76",
		CreatedAt: time.Now().UTC(),
	}
	if err := deps.clients.Create(client); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return nil, fmt.Errorf("seed client: %w", err)
	}

	if cfg.mode != modeContend {
		return nil, nil
	}

	pool := make([]string, 0, cfg.shipmentPool)
	for i := 0; i < cfg.shipmentPool; i++ {
		shipmentID := fmt.Sprintf("load-shared-%s-%d", cfg.clientTag, i)
		shipment := domain.Shipment{
			ID:          shipmentID,
			ClientID:    client.ID,
			Reference:   fmt.Sprintf("FOLIO-LOAD-%03d", i),
			Direction:   domain.DirectionInbound,
			RegimenCode: "A1",
			CreatedAt:   time.Now().UTC(),
		}
		if err := deps.shipments.Create(shipment); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, fmt.Errorf("seed shipment %s: %w", shipmentID, err)
		}
		pool = append(pool, shipmentID)
	}
	return pool, nil
}

func loadClientID(cfg config) string {
	return "client-" + cfg.clientTag
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	deps, err := buildDependencies(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to build dependencies: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = deps.close() }()

	pool, err := seed(deps, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to seed fixtures: %v\n", err)
		os.Exit(1)
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(deps, cfg, pool, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(
	deps *dependencies,
	cfg config,
	pool []string,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioOutcome := outcomeOK
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioOutcome)
	}()

	if cfg.mode == modeContend {
		if err := runContention(deps, pool, index, col); err != nil {
			scenarioOutcome = classify(err)
			return err
		}
		return nil
	}

	shipmentID := fmt.Sprintf("load-%s-%d", runID, index)
	start := time.Now()
	err := deps.shipments.Create(domain.Shipment{
		ID:          shipmentID,
		ClientID:    loadClientID(cfg),
		Reference:   fmt.Sprintf("FOLIO-LOAD-%d", index),
		Direction:   domain.DirectionInbound,
		RegimenCode: "A1",
		CreatedAt:   time.Now().UTC(),
	})
	col.record("CreateShipment", time.Since(start), classify(err))
	if err != nil {
		scenarioOutcome = classify(err)
		return err
	}

	var tracked domain.ShipmentTracking
	for _, next := range []domain.TrackingStatus{
		domain.TrackingStatusPending,
		domain.TrackingStatusInProgress,
		domain.TrackingStatusCompleted,
	} {
		start = time.Now()
		tracked, err = deps.tracking.SetStatus(shipmentID, loadStepNumber, next)
		col.record("SetStatus", time.Since(start), classify(err))
		if err != nil {
			scenarioOutcome = classify(err)
			return err
		}
	}

	if cfg.mode == modeTrackRevise || (cfg.mode == modeTrack && shouldRevise(index, cfg.reviseRate)) {
		override := domain.TrackingStatusInProgress
		start = time.Now()
		_, err = deps.revisions.Record(tracked.ID, "load-operator", "Reapertura de prueba de carga", time.Time{}, &override)
		col.record("RecordRevision", time.Since(start), classify(err))
		if err != nil {
			scenarioOutcome = classify(err)
			return err
		}
	}

	start = time.Now()
	_, err = deps.tracking.Progress(shipmentID)
	col.record("Progress", time.Since(start), classify(err))
	if err != nil {
		scenarioOutcome = classify(err)
		return err
	}

	return nil
}

func runContention(deps *dependencies, pool []string, index int, col *collector) error {
	if len(pool) == 0 {
		return errors.New("contend mode requires a seeded shipment pool")
	}
	shipmentID := pool[index%len(pool)]

	for _, next := range []domain.TrackingStatus{
		domain.TrackingStatusPending,
		domain.TrackingStatusInProgress,
		domain.TrackingStatusCompleted,
		domain.TrackingStatusInProgress,
	} {
		start := time.Now()
		_, err := deps.tracking.SetStatus(shipmentID, loadStepNumber, next)
		result := classify(err)
		col.record("SetStatus", time.Since(start), result)
		// Конфликт версий и недопустимый переход при пересечении воркеров ожидаемы.
		if err != nil && result != outcomeConflict && result != outcomeInvalidTransition {
			return err
		}
	}
	return nil
}

func shouldRevise(index, reviseRate int) bool {
	if reviseRate <= 0 {
		return false
	}
	if reviseRate >= 100 {
		return true
	}
	return index%100 < reviseRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s storage=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		cfg.storage,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
