package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/app"
	"github.com/vladislavdragonenkov/cts/internal/service/compliance"
)

const dateLayout = "2006-01-02"

// runReport агрегирует результаты выбранных джобов для JSON-отчёта.
type runReport struct {
	Date         string                         `json:"date"`
	Expiration   *compliance.ExpirationReport   `json:"expiration,omitempty"`
	Completeness *compliance.CompletenessReport `json:"completeness,omitempty"`
	Verification *compliance.VerificationReport `json:"verification,omitempty"`
}

func main() {
	var (
		job            string
		date           string
		storage        string
		dsn            string
		definitiveFile string
		presumedFile   string
		warningDays    int
		timeout        time.Duration
	)

	defaults := app.DefaultConfig()

	flag.StringVar(&job, "job", "daily", "job to run: a|b|c|daily|weekly (a=expiration, b=completeness, c=verification)")
	flag.StringVar(&date, "date", "", "reference date for the expiration sweep, YYYY-MM-DD (default: today UTC)")
	flag.StringVar(&storage, "storage", "", "storage driver: memory|postgres (fallback: CTS_STORAGE_DRIVER)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: CTS_POSTGRES_DSN)")
	flag.StringVar(&definitiveFile, "definitive-file", "", "definitive list file, one tax id per line (fallback: CTS_SAT_DEFINITIVE_FILE)")
	flag.StringVar(&presumedFile, "presumed-file", "", "presumed list file, one tax id per line (fallback: CTS_SAT_PRESUMED_FILE)")
	flag.IntVar(&warningDays, "warning-days", defaults.WarningWindowDays, "expiring-soon window in days")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "overall run timeout")
	flag.Parse()

	setupLogger()

	cfg := defaults
	cfg.StorageDriver = firstNonEmpty(storage, os.Getenv("CTS_STORAGE_DRIVER"), cfg.StorageDriver)
	cfg.PostgresDSN = firstNonEmpty(dsn, os.Getenv("CTS_POSTGRES_DSN"))
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("CTS_REDIS_ADDR"))
	cfg.SATDefinitiveFile = firstNonEmpty(definitiveFile, os.Getenv("CTS_SAT_DEFINITIVE_FILE"))
	cfg.SATPresumedFile = firstNonEmpty(presumedFile, os.Getenv("CTS_SAT_PRESUMED_FILE"))
	cfg.WarningWindowDays = warningDays
	// Схемой управляют cmd/migrate и долгоживущий сервис.
	cfg.PostgresAutoMigrate = false

	today, err := parseDate(date)
	if err != nil {
		fail("invalid -date: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	oneShot, err := app.NewOneShot(ctx, cfg, log.WithField("component", "compliance-run"))
	if err != nil {
		fail("assemble compliance engine: %v", err)
	}
	defer func() { _ = oneShot.Close() }()

	report, err := runJobs(ctx, oneShot.Engine, job, today)
	if err != nil {
		fail("compliance run failed: %v", err)
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fail("encode report: %v", err)
	}
	fmt.Println(string(encoded))
}

// runJobs выполняет выбранные джобы и собирает отчёт. Ежедневная пара
// повторяет порядок планировщика: сначала A, затем B.
func runJobs(ctx context.Context, engine compliance.Engine, job string, today time.Time) (runReport, error) {
	report := runReport{Date: today.Format(dateLayout)}

	runExpiration := func() error {
		result, err := engine.RunJobA(ctx, today)
		if err != nil {
			return fmt.Errorf("expiration sweep: %w", err)
		}
		report.Expiration = &result
		return nil
	}
	runCompleteness := func() error {
		result, err := engine.RunJobB(ctx)
		if err != nil {
			return fmt.Errorf("completeness: %w", err)
		}
		report.Completeness = &result
		return nil
	}
	runVerification := func() error {
		result, err := engine.RunJobC(ctx)
		if err != nil {
			return fmt.Errorf("list verification: %w", err)
		}
		report.Verification = &result
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(job)) {
	case "a", "expiration":
		return report, runExpiration()
	case "b", "completeness":
		return report, runCompleteness()
	case "c", "verification", "weekly":
		return report, runVerification()
	case "daily":
		if err := runExpiration(); err != nil {
			return report, err
		}
		return report, runCompleteness()
	default:
		return report, fmt.Errorf("unsupported job: %s (use a|b|c|daily|weekly)", job)
	}
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(dateLayout, raw)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// setupLogger направляет логи в stderr, оставляя stdout для JSON-отчёта.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
