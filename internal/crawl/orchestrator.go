// Package crawl runs the ordered fetch strategies for a URL under a global
// wall-clock budget.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tripsync/internal/metrics"
	"github.com/JakeFAU/tripsync/internal/trip"
)

// DefaultBudget is the overall ceiling for one FetchPage call.
const DefaultBudget = 60 * time.Second

// Step pairs a strategy with its per-attempt timeout.
type Step struct {
	Strategy trip.Strategy
	Timeout  time.Duration
}

// Orchestrator tries strategies in order and returns the first success.
type Orchestrator struct {
	steps  []Step
	retry  RetryPolicy
	budget time.Duration
	logger *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithDefaultBudget sets the budget used when FetchPage is called with zero.
func WithDefaultBudget(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.budget = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New builds an Orchestrator over steps, which are used in the given order.
func New(steps []Step, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		steps:  append([]Step(nil), steps...),
		retry:  DefaultRetryPolicy(),
		budget: DefaultBudget,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("crawl")
	return o
}

// Methods lists the configured strategy order.
func (o *Orchestrator) Methods() []trip.FetchMethod {
	out := make([]trip.FetchMethod, 0, len(o.steps))
	for _, s := range o.steps {
		out = append(out, s.Strategy.Method())
	}
	return out
}

type attemptResult struct {
	page trip.RawPage
	err  error
}

var errAttemptTimeout = errors.New("strategy attempt timed out")

// FetchPage returns the first successful RawPage. When the budget elapses the
// in-flight attempt is abandoned and a *trip.FetchError is returned at once.
func (o *Orchestrator) FetchPage(ctx context.Context, url string, budget time.Duration) (trip.RawPage, error) {
	if budget <= 0 {
		budget = o.budget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	fail := &trip.FetchError{URL: url}
	for _, step := range o.steps {
		method := step.Strategy.Method()
		for attempt := 1; ; attempt++ {
			page, err := o.attempt(ctx, step, url)
			if err == nil {
				o.logger.Debug("fetch succeeded",
					zap.String("url", url),
					zap.String("strategy", string(method)),
					zap.Int("attempt", attempt),
				)
				return page, nil
			}
			fail.Attempts = append(fail.Attempts, trip.AttemptError{Method: method, Attempt: attempt, Err: err})
			if ctx.Err() != nil {
				fail.Cause = ctx.Err()
				o.logger.Warn("fetch budget exhausted",
					zap.String("url", url),
					zap.Duration("budget", budget),
					zap.Int("attempts", len(fail.Attempts)),
				)
				return trip.RawPage{}, fail
			}
			if !o.retry.ShouldRetry(err, attempt) {
				o.logger.Info("fetch strategy failed",
					zap.String("url", url),
					zap.String("strategy", string(method)),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				break
			}
			if err := sleepCtx(ctx, o.retry.Backoff(attempt)); err != nil {
				fail.Cause = err
				return trip.RawPage{}, fail
			}
		}
	}
	return trip.RawPage{}, fail
}

// attempt runs one strategy call bounded by its own timeout and the budget. The
// strategy goroutine is not awaited once either deadline passes.
func (o *Orchestrator) attempt(ctx context.Context, step Step, url string) (trip.RawPage, error) {
	attemptCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	method := string(step.Strategy.Method())
	start := time.Now()
	done := make(chan attemptResult, 1)
	go func() {
		page, err := step.Strategy.Fetch(attemptCtx, url)
		done <- attemptResult{page: page, err: err}
	}()

	select {
	case res := <-done:
		metrics.ObserveFetchAttempt(method, outcome(res.err), time.Since(start))
		if res.err == nil && res.page.Markup == "" {
			return trip.RawPage{}, errors.New("empty markup")
		}
		return res.page, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			metrics.ObserveFetchAttempt(method, "abandoned", time.Since(start))
			return trip.RawPage{}, fmt.Errorf("%s: %w", method, ctx.Err())
		}
		metrics.ObserveFetchAttempt(method, "timeout", time.Since(start))
		return trip.RawPage{}, fmt.Errorf("%w after %s: %w", errAttemptTimeout, step.Timeout, context.DeadlineExceeded)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case trip.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
