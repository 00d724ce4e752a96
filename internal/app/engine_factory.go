package app

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
	"github.com/vladislavdragonenkov/cts/internal/rules"
	"github.com/vladislavdragonenkov/cts/internal/service/compliance"
	"github.com/vladislavdragonenkov/cts/internal/service/document"
	"github.com/vladislavdragonenkov/cts/internal/service/notification"
	"github.com/vladislavdragonenkov/cts/internal/service/satlist"
)

const (
	verifierMaxFailures  = 5
	verifierResetTimeout = 30 * time.Second
)

// createVerifier собирает цепочку верификации: статические списки
// за circuit breaker'ом, при наличии кэша сверху кэширующий слой.
func createVerifier(cfg Config, cache satlist.ResultCache, logger *log.Entry) (domain.ListVerifier, error) {
	definitive, err := loadTaxIDFile(cfg.SATDefinitiveFile)
	if err != nil {
		return nil, fmt.Errorf("load definitive list: %w", err)
	}
	presumed, err := loadTaxIDFile(cfg.SATPresumedFile)
	if err != nil {
		return nil, fmt.Errorf("load presumed list: %w", err)
	}

	static := satlist.NewStaticVerifier(definitive, presumed, logger)
	breaker := satlist.NewCircuitBreaker(verifierMaxFailures, verifierResetTimeout, logger)
	verifier := satlist.NewBreakerVerifier(static, breaker)
	return satlist.NewCachedVerifier(verifier, cache, logger), nil
}

// buildServices собирает доменные сервисы, нужные движку сверок:
// приёмник уведомлений с таблицами шаблонов и сервис документов.
func buildServices(deps *runtimeDependencies, logger *log.Entry) (notification.Sink, document.Service, error) {
	tables, err := rules.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load notification templates: %w", err)
	}

	sink := notification.NewSink(deps.notifications, tables, deps.outboxRepo, logger.WithField("layer", "notification"))
	documents := document.NewService(deps.documents, deps.categories, deps.outboxRepo, logger.WithField("layer", "document"))
	return sink, documents, nil
}

// createEngine собирает движок комплаенса с джоб-уровневым retry.
func createEngine(
	deps *runtimeDependencies,
	documents document.Service,
	verifier domain.ListVerifier,
	sink notification.Sink,
	cfg Config,
	logger *log.Entry,
) compliance.Engine {
	engine := compliance.NewEngine(
		documents,
		deps.documents,
		deps.clients,
		deps.verifications,
		verifier,
		sink,
		deps.outboxRepo,
		compliance.Config{
			WarningWindowDays: cfg.WarningWindowDays,
			VerifyTimeout:     cfg.VerifyTimeout,
			MaxParallel:       cfg.MaxParallel,
		},
		logger,
	)

	return compliance.NewRetryableEngine(engine, compliance.DefaultRetryConfig(), logger)
}

// loadTaxIDFile читает список налоговых идентификаторов из файла:
// по одному на строку, пустые строки и строки с '#' пропускаются.
// Пустой путь означает пустой список.
func loadTaxIDFile(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var taxIDs []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		taxIDs = append(taxIDs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return taxIDs, nil
}
