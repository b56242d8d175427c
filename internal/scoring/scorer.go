package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/adboardhq/moderation-backend/internal/ads"
	"github.com/adboardhq/moderation-backend/pkg/config"
)

// Result is the scoring collaborator's verdict for one advertisement.
type Result struct {
	IsViolation bool
	Probability float64
}

// Error classifies a scoring failure. Transient failures are retried via
// queue redelivery; terminal failures commit the task as failed.
type Error struct {
	Transient bool
	cause     error
}

func (e *Error) Error() string {
	kind := "terminal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("scoring %s failure: %v", kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// NewTransientError wraps a retryable scoring failure.
func NewTransientError(cause error) *Error {
	return &Error{Transient: true, cause: cause}
}

// NewTerminalError wraps a scoring failure that retrying cannot fix.
func NewTerminalError(cause error) *Error {
	return &Error{Transient: false, cause: cause}
}

// IsTransient reports whether err is a retryable scoring failure.
func IsTransient(err error) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Transient
	}
	return false
}

// Scorer is the scoring collaborator consumed by the moderation pipeline.
type Scorer interface {
	Score(ctx context.Context, payload ads.Snapshot) (Result, error)
}

// Model is the default heuristic scorer. Verified sellers publish clean
// listings; for the rest the violation probability grows with thin content.
type Model struct {
	threshold float64
}

// NewModel builds the heuristic scorer from configuration.
func NewModel(cfg config.ScoringConfig) *Model {
	threshold := cfg.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	return &Model{threshold: threshold}
}

func (m *Model) Score(ctx context.Context, payload ads.Snapshot) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, NewTransientError(err)
	}
	if strings.TrimSpace(payload.Description) == "" {
		return Result{}, NewTerminalError(errors.New("payload has no description"))
	}

	probability := m.violationProbability(payload)
	return Result{
		IsViolation: probability >= m.threshold,
		Probability: probability,
	}, nil
}

func (m *Model) violationProbability(payload ads.Snapshot) float64 {
	if payload.IsVerifiedSeller {
		return 0.02
	}

	score := 0.55
	if len(payload.Description) < 32 {
		score += 0.2
	}
	if payload.ImagesQty == 0 {
		score += 0.15
	}
	return math.Min(score, 1)
}

// TimeoutScorer bounds every scoring call by a fixed deadline. Exceeding the
// deadline is a transient failure.
type TimeoutScorer struct {
	inner   Scorer
	timeout time.Duration
}

// NewTimeoutScorer wraps inner with the configured per-call deadline.
func NewTimeoutScorer(inner Scorer, timeout time.Duration) *TimeoutScorer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TimeoutScorer{inner: inner, timeout: timeout}
}

func (t *TimeoutScorer) Score(ctx context.Context, payload ads.Snapshot) (Result, error) {
	scoreCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	result, err := t.inner.Score(scoreCtx, payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !IsTransient(err) {
			return Result{}, NewTransientError(err)
		}
		return Result{}, err
	}
	return result, nil
}
