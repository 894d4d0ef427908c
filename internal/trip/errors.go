package trip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Error taxonomy shared by every stage of the pipeline.
var (
	// ErrFetchFailure means every fetch strategy failed or the budget ran out.
	ErrFetchFailure = errors.New("fetch failure: no content could be retrieved")
	// ErrExtractionEmpty means no title or destination could be identified.
	ErrExtractionEmpty = errors.New("extraction empty: no identifiable title or destination")
	// ErrNotFound is a store or ledger lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable means a quote or AI service could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrLedgerUnreachable means the ledger is down or not configured.
	ErrLedgerUnreachable = errors.New("ledger unreachable")
	// ErrRowNotFound means a captured row address no longer resolves.
	ErrRowNotFound = errors.New("ledger row not found")
	// ErrStrategyUnavailable is returned by constructors of strategies that cannot run here.
	ErrStrategyUnavailable = errors.New("fetch strategy unavailable")
)

// AttemptError records one failed strategy attempt.
type AttemptError struct {
	Method  FetchMethod
	Attempt int
	Err     error
}

// FetchError is returned when the orchestrator gives up on a URL.
type FetchError struct {
	URL      string
	Attempts []AttemptError
	Cause    error
}

func (e *FetchError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s#%d: %v", a.Method, a.Attempt, a.Err))
	}
	msg := fmt.Sprintf("fetch %s failed after %d attempts", e.URL, len(e.Attempts))
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	if len(parts) > 0 {
		msg += ": " + strings.Join(parts, "; ")
	}
	return msg
}

// Is lets errors.Is match ErrFetchFailure.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailure
}

// Unwrap exposes the cause (usually a context error when the budget elapsed).
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// TransientError marks a failure that is worth retrying with the same strategy.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a retryable network failure. Timeouts and
// cancellations are never transient: the strategy already used its time.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return !netErr.Timeout()
	}
	return false
}

// CheckHTTPStatus maps an upstream HTTP status to the strategy error taxonomy:
// 429 and 5xx are transient, other 4xx are terminal for the strategy.
func CheckHTTPStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return Transient(fmt.Errorf("http status %d", code))
	case code >= http.StatusBadRequest:
		return fmt.Errorf("http status %d", code)
	default:
		return nil
	}
}
