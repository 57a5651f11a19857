package capture

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/GriffinCanCode/snapdiff/internal/errors"
	"github.com/GriffinCanCode/snapdiff/internal/resilience"
	"github.com/GriffinCanCode/snapdiff/internal/trace"
)

// Resilient wraps a Capturer with retry and a circuit breaker.
type Resilient struct {
	next    Capturer
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewResilient decorates next. A retry config with MaxRetries <= 0 makes a
// single attempt. A nil breaker gets resilience.CaptureConfig().
func NewResilient(next Capturer, retry resilience.RetryConfig, breaker *resilience.Breaker) *Resilient {
	if breaker == nil {
		breaker = resilience.New(resilience.CaptureConfig())
	}
	isRetryable := retry.IsRetryable
	if isRetryable == nil {
		isRetryable = resilience.IsRetryableCapture
	}
	retry.IsRetryable = func(err error) bool {
		return !errors.Is(err, resilience.ErrOpen) && isRetryable(err)
	}
	return &Resilient{next: next, retry: retry, breaker: breaker}
}

// Breaker exposes the underlying breaker for health reporting.
func (r *Resilient) Breaker() *resilience.Breaker { return r.breaker }

// Capture validates the request and runs it under retry and breaker protection.
func (r *Resilient) Capture(ctx context.Context, req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := trace.StartSpan(ctx, "capture")
	defer span.End()
	span.SetAttr("kind", req.Kind.String())
	if req.Target != "" {
		span.SetAttr("target", req.Target)
	}

	attempts := 0
	attempt := func() ([]byte, error) {
		attempts++
		return resilience.ExecuteWithResult(r.breaker, func() ([]byte, error) {
			return r.next.Capture(ctx, req)
		})
	}

	var data []byte
	var err error
	if r.retry.MaxRetries <= 0 {
		data, err = attempt()
	} else {
		cfg := r.retry
		cfg.OnRetry = func(n int, delay time.Duration, err error) {
			trace.Logger(ctx).Info("retrying capture", "attempt", n, "delay", delay, "kind", req.Kind.String(), "error", err)
		}
		err = resilience.Retry(ctx, cfg, func() error {
			var e error
			data, e = attempt()
			return e
		})
	}
	span.SetAttr("attempts", attempts)

	if err != nil {
		err = classify(err)
		span.RecordError(err)
		trace.Logger(ctx).Warn("capture failed", "span", span, "error", err)
		return nil, err
	}
	return data, nil
}

// classify maps raw collaborator failures onto AppError codes.
func classify(err error) error {
	switch {
	case errors.Is(err, resilience.ErrOpen):
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "capture breaker open")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.CodeTimeout, "capture timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.CodeCancelled, "capture cancelled")
	case apperrors.CodeOf(err) != apperrors.CodeUnknown:
		return err
	default:
		return apperrors.Wrap(err, apperrors.CodeCaptureFailed, "capture failed")
	}
}
