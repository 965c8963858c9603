// Package gateway talks to external payment providers. Each provider is an
// Adapter; the Registry picks one per request and the Client wraps its
// Confirm call with the retry policy.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementContext is the routing input derived from an inbound request.
type SettlementContext struct {
	Provider string
	Amount   decimal.Decimal
	Type     string
}

// Request asks a provider to capture an already authorized payment.
type Request struct {
	OrderNo    string
	PaymentKey string
	Amount     decimal.Decimal
	Provider   string
}

// Result is the provider-neutral shape of a confirmed payment.
type Result struct {
	GatewayTxID string
	Amount      decimal.Decimal
	ApprovedAt  time.Time
	Method      string
	Provider    string
}

// Adapter is a provider-specific client. Implementations keep only static
// configuration and must be safe for concurrent use.
type Adapter interface {
	Name() string
	Supports(sc SettlementContext) bool
	Confirm(ctx context.Context, req Request) (*Result, error)
}

// Kind classifies a failed Confirm call.
type Kind int

const (
	// KindRetryable covers transport failures and 5xx responses.
	KindRetryable Kind = iota
	// KindTimeout means the provider did not answer before the deadline.
	KindTimeout
	// KindRejected is an explicit decline or 4xx response.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindTimeout:
		return "timeout"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is returned by adapters to drive the retry decision.
type Error struct {
	Kind       Kind
	StatusCode int
	Reason     string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("gateway %s", e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable builds a KindRetryable error.
func Retryable(statusCode int, reason string, err error) *Error {
	return &Error{Kind: KindRetryable, StatusCode: statusCode, Reason: reason, Err: err}
}

// Timeout builds a KindTimeout error.
func Timeout(reason string, err error) *Error {
	return &Error{Kind: KindTimeout, Reason: reason, Err: err}
}

// Rejected builds a KindRejected error.
func Rejected(statusCode int, reason string) *Error {
	return &Error{Kind: KindRejected, StatusCode: statusCode, Reason: reason}
}

// Classify returns the kind of err. Deadline and network timeouts are
// timeouts; anything unclassified, cancellation included, is treated as a
// transport failure.
func Classify(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindRetryable
}

// reasonOf extracts the provider's reason text, falling back to err's message.
func reasonOf(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Reason != "" {
		return gwErr.Reason
	}
	return err.Error()
}
