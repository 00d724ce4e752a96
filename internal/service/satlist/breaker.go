package satlist

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

// ErrCircuitOpen возвращается, пока breaker не пропускает вызовы.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState описывает состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker простая реализация circuit breaker паттерна.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      *log.Entry
}

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}

	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
		logger:       logger,
	}
}

// Execute выполняет операцию через circuit breaker.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	if err := cb.beforeCall(operation); err != nil {
		return err
	}

	err := fn()
	cb.afterCall(operation, err)
	return err
}

// State возвращает текущее состояние breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) beforeCall(operation string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
		} else {
			return ErrCircuitOpen
		}
	}

	return nil
}

func (cb *CircuitBreaker) afterCall(operation string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()

		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("circuit breaker opened")
		}

		return
	}

	// Успешное выполнение - сбрасываем счётчик
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	cb.failures = 0
}

// BreakerVerifier защищает вложенный верификатор circuit breaker'ом:
// после серии сбоев внешнего сервиса вызовы отклоняются сразу,
// пока не истечёт окно восстановления.
type BreakerVerifier struct {
	inner   domain.ListVerifier
	breaker *CircuitBreaker
}

// NewBreakerVerifier оборачивает верификатор circuit breaker'ом.
// При nil-breaker возвращается вложенный верификатор без обёртки.
func NewBreakerVerifier(inner domain.ListVerifier, breaker *CircuitBreaker) domain.ListVerifier {
	if breaker == nil {
		return inner
	}

	return &BreakerVerifier{
		inner:   inner,
		breaker: breaker,
	}
}

// Verify выполняет проверку через circuit breaker.
func (v *BreakerVerifier) Verify(ctx context.Context, taxID string) (domain.VerificationResult, error) {
	var result domain.VerificationResult

	err := v.breaker.Execute("verify", func() error {
		inner, verifyErr := v.inner.Verify(ctx, taxID)
		if verifyErr != nil {
			return verifyErr
		}
		result = inner
		return nil
	})
	if err != nil {
		return domain.VerificationResult{}, err
	}

	return result, nil
}

var _ domain.ListVerifier = (*BreakerVerifier)(nil)
