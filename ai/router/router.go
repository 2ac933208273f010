// Package router provides ordered provider fallback for chat completions.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/omnichat/ai/core/llm"
	"github.com/hrygo/omnichat/internal/logging"
)

// DefaultTimeout bounds a single candidate call.
const DefaultTimeout = 30 * time.Second

var (
	// ErrProviderUnavailable is matched by every error that ends a fallback run without a completion.
	ErrProviderUnavailable = errors.New("AI provider unavailable")

	// ErrNoCandidates is returned when the router has nothing to try.
	ErrNoCandidates = fmt.Errorf("no provider candidates configured: %w", ErrProviderUnavailable)
)

// Action is the router's decision after a failed attempt.
type Action int

const (
	ActionContinue Action = iota
	ActionAbort
)

func (a Action) String() string {
	if a == ActionAbort {
		return "abort"
	}
	return "continue"
}

// Decide maps a candidate failure to the next step.
// Credential and permission failures stop the run since the remaining
// candidates of a misconfigured deployment will not do better.
func Decide(err error) Action {
	switch llm.KindOf(err) {
	case llm.KindUnauthorized, llm.KindForbidden:
		return ActionAbort
	default:
		return ActionContinue
	}
}

// Attempt records a single candidate call.
type Attempt struct {
	Provider string
	Model    string
	Err      error
	Duration time.Duration
}

// Result is a successful completion.
type Result struct {
	Text     string
	Provider string
	Model    string
	Stats    *llm.CallStats
	Attempts []Attempt
}

// ExhaustedError is returned when every candidate failed with a continuable error.
type ExhaustedError struct {
	Attempts []Attempt
	Last     error
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s/%s: %s", a.Provider, a.Model, llm.KindOf(a.Err)))
	}
	return fmt.Sprintf("all %d provider candidates failed [%s]", len(e.Attempts), strings.Join(parts, ", "))
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrProviderUnavailable }

// AbortError is returned when a candidate failure stopped the run early.
type AbortError struct {
	Attempts []Attempt
	Err      *llm.ProviderError
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("provider fallback aborted after %d attempts: %v", len(e.Attempts), e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

func (e *AbortError) Is(target error) bool { return target == ErrProviderUnavailable }

// Observer receives one call per attempt.
type Observer interface {
	ObserveAttempt(provider, model, outcome string, duration time.Duration, stats *llm.CallStats)
}

// Router tries candidates in order until one succeeds.
type Router struct {
	candidates []llm.Provider
	timeout    time.Duration
	observer   Observer
}

// Option configures a Router.
type Option func(*Router)

// WithTimeout sets the per-candidate timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithObserver attaches an attempt observer.
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observer = o }
}

// New creates a Router over the ordered candidates.
func New(candidates []llm.Provider, opts ...Option) *Router {
	r := &Router{
		candidates: candidates,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Candidates returns the configured candidates in fallback order.
func (r *Router) Candidates() []llm.Provider {
	out := make([]llm.Provider, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// Generate runs the fallback loop. Candidates are tried sequentially, each
// under its own timeout. A cancelled parent context stops the loop.
func (r *Router) Generate(ctx context.Context, turns []llm.Message) (*Result, error) {
	if len(r.candidates) == 0 {
		return nil, ErrNoCandidates
	}

	logger := logging.FromContext(ctx)
	attempts := make([]Attempt, 0, len(r.candidates))
	var last error
	for i, p := range r.candidates {
		if err := ctx.Err(); err != nil {
			logger.Warn("router: request cancelled before candidate",
				"provider", p.Name(),
				"model", p.Model(),
				"attempted", len(attempts),
			)
			return nil, &ExhaustedError{Attempts: attempts, Last: err}
		}

		text, stats, dur, err := r.call(ctx, p, turns)
		if err == nil {
			r.observe(p, "success", dur, stats)
			if i > 0 {
				logger.Info("router: fallback candidate succeeded",
					"provider", p.Name(),
					"model", p.Model(),
					"position", i,
				)
			}
			return &Result{
				Text:     text,
				Provider: p.Name(),
				Model:    p.Model(),
				Stats:    stats,
				Attempts: append(attempts, Attempt{Provider: p.Name(), Model: p.Model(), Duration: dur}),
			}, nil
		}

		attempts = append(attempts, Attempt{Provider: p.Name(), Model: p.Model(), Err: err, Duration: dur})
		last = err
		r.observe(p, string(llm.KindOf(err)), dur, nil)

		action := Decide(err)
		logger.Warn("router: candidate failed",
			"provider", p.Name(),
			"model", p.Model(),
			"kind", llm.KindOf(err),
			"action", action.String(),
			"duration_ms", dur.Milliseconds(),
			"error", err,
		)

		if action == ActionAbort {
			var pe *llm.ProviderError
			errors.As(err, &pe)
			return nil, &AbortError{Attempts: attempts, Err: pe}
		}
	}

	logger.Error("router: all candidates failed", "attempted", len(attempts))
	return nil, &ExhaustedError{Attempts: attempts, Last: last}
}

func (r *Router) call(ctx context.Context, p llm.Provider, turns []llm.Message) (string, *llm.CallStats, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	text, stats, err := p.Generate(callCtx, turns)
	dur := time.Since(start)
	if err != nil {
		var pe *llm.ProviderError
		if !errors.As(err, &pe) {
			err = &llm.ProviderError{Provider: p.Name(), Model: p.Model(), Kind: llm.KindUnknown, Err: err}
		}
		return "", nil, dur, err
	}
	return text, stats, dur, nil
}

func (r *Router) observe(p llm.Provider, outcome string, dur time.Duration, stats *llm.CallStats) {
	if r.observer != nil {
		r.observer.ObserveAttempt(p.Name(), p.Model(), outcome, dur, stats)
	}
}
