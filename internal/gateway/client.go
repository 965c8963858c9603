package gateway

import (
	"context"
	"fmt"
	"math"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// RetryPolicy bounds the Confirm retry loop. MaxAttempts counts the first call.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy is 3 attempts with 1s, 2s backoff capped at 10s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	}
}

// Backoff returns the wait before attempt+1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Client performs one gateway confirmation with bounded retry
type Client struct {
	policy         RetryPolicy
	attemptTimeout time.Duration
	logger         *zap.Logger
}

// NewClient creates a gateway client. attemptTimeout bounds each call on top
// of the caller's own deadline; zero disables it.
func NewClient(policy RetryPolicy, attemptTimeout time.Duration) *Client {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Client{
		policy:         policy,
		attemptTimeout: attemptTimeout,
		logger:         util.GetLogger(),
	}
}

// Confirm calls adapter.Confirm until it succeeds, fails terminally, or the
// attempt bound is reached. Timeouts and rejections are never retried.
// A result whose amount differs from the request counts as a retryable failure.
func (c *Client) Confirm(ctx context.Context, adapter Adapter, req Request) (*Result, error) {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		result, err := c.attempt(ctx, adapter, req, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		switch Classify(err) {
		case KindTimeout:
			c.logger.Error("Gateway timed out, not retrying",
				zap.String("provider", adapter.Name()),
				zap.String("order_no", req.OrderNo),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return nil, apperr.Wrap(apperr.CodeSettlementTimeout, err, "")
		case KindRejected:
			c.logger.Warn("Gateway rejected confirmation",
				zap.String("provider", adapter.Name()),
				zap.String("order_no", req.OrderNo),
				zap.String("reason", reasonOf(err)))
			return nil, apperr.Wrap(apperr.CodeSettlementApprovalFailed, err, reasonOf(err))
		}

		if attempt == c.policy.MaxAttempts {
			break
		}

		wait := c.policy.Backoff(attempt)
		c.logger.Warn("Gateway call failed, retrying",
			zap.String("provider", adapter.Name()),
			zap.String("order_no", req.OrderNo),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		if err := sleep(ctx, wait); err != nil {
			return nil, apperr.Wrap(apperr.CodeSettlementTimeout, err, "deadline reached while waiting to retry")
		}
	}

	c.logger.Error("All gateway attempts failed",
		zap.String("provider", adapter.Name()),
		zap.String("order_no", req.OrderNo),
		zap.Int("attempts", c.policy.MaxAttempts),
		zap.Error(lastErr))
	return nil, apperr.Wrap(apperr.CodeSettlementApprovalFailed, lastErr, reasonOf(lastErr))
}

func (c *Client) attempt(ctx context.Context, adapter Adapter, req Request, attempt int) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "Gateway.Confirm")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.provider", adapter.Name()),
		attribute.Int("gateway.attempt", attempt),
	)

	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := adapter.Confirm(ctx, req)
	util.GatewayLatency.WithLabelValues(adapter.Name()).Observe(time.Since(start).Seconds())

	if err == nil && result == nil {
		err = Retryable(0, "empty gateway result", nil)
	}
	if err == nil && !result.Amount.Equal(req.Amount) {
		err = Retryable(0, fmt.Sprintf("approved amount %s does not match requested %s", result.Amount, req.Amount), nil)
	}

	if err != nil {
		kind := Classify(err)
		util.GatewayAttemptsTotal.WithLabelValues(adapter.Name(), kind.String()).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		return nil, err
	}

	util.GatewayAttemptsTotal.WithLabelValues(adapter.Name(), "success").Inc()
	span.SetStatus(codes.Ok, "confirmed")
	return result, nil
}

func sleep(ctx context.Context, d time.Duration) error {
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
