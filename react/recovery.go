package react

import (
	"context"
	"math"
	"math/rand"
	"slices"
	"time"
)

// RecoveryKind is what the orchestrator should do after a failure.
type RecoveryKind string

const (
	RecoverRetry       RecoveryKind = "retry"
	RecoverSwitchModel RecoveryKind = "switch_model"
	RecoverAbort       RecoveryKind = "abort"
)

// RecoveryAction is one step of a recovery plan.
type RecoveryAction struct {
	Kind   RecoveryKind
	Delay  time.Duration // retry
	Target string        // switch_model
	Reason string
}

// ErrorSource says where a failure happened.
type ErrorSource string

const (
	SourceTool  ErrorSource = "tool"
	SourceModel ErrorSource = "model"
)

// ErrorContext describes a failure to the recovery port.
type ErrorContext struct {
	Source   ErrorSource
	Tool     string
	Model    string
	Kind     ErrorKind
	Attempt  int // attempts made so far, starting at 1; consecutive failures for models
	Failures int // consecutive model failures across iterations
	Err      error
}

// RecoveryPort decides how to react to a failure. Actions are applied in
// order; a plan without retry ends the attempt.
type RecoveryPort interface {
	AnalyzeAndRecover(ctx context.Context, ec ErrorContext) []RecoveryAction
}

// RecoveryPolicy is the default RecoveryPort: exponential backoff for
// retryable kinds and a model switch after repeated model failures.
type RecoveryPolicy struct {
	cfg       RetryConfig
	fallbacks []string
	rand      func() float64
}

// NewRecoveryPolicy creates a policy. fallbackModels are tried in order when
// the current model keeps failing.
func NewRecoveryPolicy(cfg RetryConfig, fallbackModels []string) *RecoveryPolicy {
	return &RecoveryPolicy{cfg: cfg, fallbacks: fallbackModels, rand: rand.Float64}
}

// Delay returns the wait before retry n (0-indexed).
func (p *RecoveryPolicy) Delay(n int) time.Duration {
	mult := p.cfg.Multiplier
	if mult <= 0 {
		mult = 2
	}
	delay := float64(p.cfg.BaseDelay) * math.Pow(mult, float64(n))
	if p.cfg.MaxDelay > 0 {
		delay = math.Min(delay, float64(p.cfg.MaxDelay))
	}
	if p.cfg.Jitter {
		delay *= 0.5 + p.rand() // [0.5, 1.5)
	}
	return time.Duration(delay)
}

// AnalyzeAndRecover implements RecoveryPort.
func (p *RecoveryPolicy) AnalyzeAndRecover(ctx context.Context, ec ErrorContext) []RecoveryAction {
	if ctx.Err() != nil {
		return []RecoveryAction{{Kind: RecoverAbort, Reason: "context done"}}
	}
	if !ec.Kind.Retryable() {
		return []RecoveryAction{{Kind: RecoverAbort, Reason: string(ec.Kind) + " errors are not retried"}}
	}

	var plan []RecoveryAction
	if ec.Source == SourceModel && p.cfg.SwitchModelAfter > 0 && ec.Failures >= p.cfg.SwitchModelAfter {
		if target := p.nextModel(ec.Model); target != "" {
			plan = append(plan, RecoveryAction{Kind: RecoverSwitchModel, Target: target, Reason: "repeated model failures"})
		}
	}
	if ec.Attempt >= p.cfg.MaxAttempts {
		return append(plan, RecoveryAction{Kind: RecoverAbort, Reason: "retry attempts exhausted"})
	}
	return append(plan, RecoveryAction{Kind: RecoverRetry, Delay: p.Delay(ec.Attempt - 1)})
}

func (p *RecoveryPolicy) nextModel(current string) string {
	i := slices.Index(p.fallbacks, current)
	for _, m := range p.fallbacks[i+1:] {
		if m != current {
			return m
		}
	}
	return ""
}

// Clock abstracts time for the loop so tests control windows and backoff.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
