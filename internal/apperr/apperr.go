package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure the settlement flow can report to its caller.
type Code string

const (
	CodeOrderNotFound               Code = "ORDER_NOT_FOUND"
	CodeInvalidOrderStatus          Code = "INVALID_ORDER_STATUS"
	CodeOrderAccessDenied           Code = "ORDER_ACCESS_DENIED"
	CodeInsufficientStock           Code = "INSUFFICIENT_STOCK"
	CodeInvalidAmount               Code = "INVALID_AMOUNT"
	CodeNoAdapterFound              Code = "NO_ADAPTER_FOUND"
	CodePaymentNotFound             Code = "PAYMENT_NOT_FOUND"
	CodeInvalidPaymentStatus        Code = "INVALID_PAYMENT_STATUS"
	CodeSettlementApprovalFailed    Code = "SETTLEMENT_APPROVAL_FAILED"
	CodeSettlementTimeout           Code = "SETTLEMENT_TIMEOUT"
	CodeInvalidGatewayTransactionID Code = "INVALID_GATEWAY_TRANSACTION_ID"
	CodeManualCheckRequired         Code = "MANUAL_CHECK_REQUIRED"
	CodeInconsistentState           Code = "INCONSISTENT_STATE"
	CodeDuplicateRequest            Code = "DUPLICATE_REQUEST"
	CodeInternal                    Code = "INTERNAL"
)

// Category groups codes by what the client may do next.
type Category string

const (
	// CategoryRejected: the request itself is wrong, nothing happened.
	CategoryRejected Category = "rejected"
	// CategoryDeclined: the gateway did not take the money, everything was rolled back.
	CategoryDeclined Category = "declined"
	// CategoryManualCheck: the gateway took the money but local finalization failed.
	CategoryManualCheck Category = "manual_check"
	// CategoryInconsistent: compensation itself failed.
	CategoryInconsistent Category = "inconsistent"
	CategoryInternal     Category = "internal"
)

var defaultMessages = map[Code]string{
	CodeOrderNotFound:               "order not found",
	CodeInvalidOrderStatus:          "order is not in a payable state",
	CodeOrderAccessDenied:           "order belongs to another user",
	CodeInsufficientStock:           "insufficient stock",
	CodeInvalidAmount:               "invalid payment amount",
	CodeNoAdapterFound:              "no payment gateway supports this request",
	CodePaymentNotFound:             "payment not found",
	CodeInvalidPaymentStatus:        "invalid payment status transition",
	CodeSettlementApprovalFailed:    "payment was declined or the gateway is unavailable, nothing was charged",
	CodeSettlementTimeout:           "payment gateway timed out, nothing was charged",
	CodeInvalidGatewayTransactionID: "gateway transaction id is missing",
	CodeManualCheckRequired:         "settlement was approved upstream but local finalization failed; contact support",
	CodeInconsistentState:           "settlement failed and could not be fully rolled back",
	CodeDuplicateRequest:            "the same settlement request is already being processed",
	CodeInternal:                    "internal error",
}

// Error is the error type returned across package boundaries by the settlement flow.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Category reports the client-facing class of the error.
func (e *Error) Category() Category {
	return CategoryOf(e.Code)
}

// New creates an error with the default message for code.
func New(code Code) *Error {
	return &Error{Code: code, Message: defaultMessages[code]}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code to a lower level cause.
func Wrap(code Code, err error, message string) *Error {
	if message == "" {
		message = defaultMessages[code]
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// CategoryOf maps a code to its client-facing category.
func CategoryOf(code Code) Category {
	switch code {
	case CodeOrderNotFound, CodeInvalidOrderStatus, CodeOrderAccessDenied,
		CodeInsufficientStock, CodeInvalidAmount, CodeDuplicateRequest:
		return CategoryRejected
	case CodeSettlementApprovalFailed, CodeSettlementTimeout:
		return CategoryDeclined
	case CodeManualCheckRequired, CodeInvalidGatewayTransactionID:
		return CategoryManualCheck
	case CodeInconsistentState:
		return CategoryInconsistent
	default:
		return CategoryInternal
	}
}

// HTTPStatus maps a code to the response status used by the API layer.
func HTTPStatus(code Code) int {
	switch code {
	case CodeOrderNotFound, CodePaymentNotFound:
		return http.StatusNotFound
	case CodeOrderAccessDenied:
		return http.StatusForbidden
	case CodeInvalidOrderStatus, CodeInsufficientStock, CodeInvalidPaymentStatus:
		return http.StatusUnprocessableEntity
	case CodeDuplicateRequest:
		return http.StatusTooManyRequests
	case CodeInvalidAmount:
		return http.StatusBadRequest
	case CodeSettlementApprovalFailed:
		return http.StatusPaymentRequired
	case CodeSettlementTimeout:
		return http.StatusGatewayTimeout
	case CodeManualCheckRequired, CodeInvalidGatewayTransactionID:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// InsufficientStockError reports a reservation that cannot be satisfied.
type InsufficientStockError struct {
	OptionID  int64
	Requested int
	Available int
}

// Shortfall is how many units are missing.
func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for option %d: requested=%d, available=%d, shortfall=%d",
		e.OptionID, e.Requested, e.Available, e.Shortfall())
}

// InsufficientStock builds the coded error wrapping the shortage details.
func InsufficientStock(optionID int64, requested, available int) *Error {
	detail := &InsufficientStockError{OptionID: optionID, Requested: requested, Available: available}
	return &Error{Code: CodeInsufficientStock, Message: detail.Error(), Err: detail}
}
