package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures for the host workflow.
type ErrorKind string

const (
	KindInvalidData         ErrorKind = "invalid_data"
	KindRateUnavailable     ErrorKind = "rate_unavailable"
	KindLedgerQueryFailed   ErrorKind = "ledger_query_failed"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindDerivationFailed    ErrorKind = "derivation_failed"
)

// Error carries the kind and, for per-payment failures, the payment id so an
// operator can tie a log line back to a checkout session.
type Error struct {
	Kind      ErrorKind
	PaymentID string
	Err       error
}

func (e *Error) Error() string {
	if e.PaymentID != "" {
		return fmt.Sprintf("%s (payment %s): %v", e.Kind, e.PaymentID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the kind from any error in the chain, or "".
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func newError(kind ErrorKind, paymentID, msg string) *Error {
	return &Error{Kind: kind, PaymentID: paymentID, Err: errors.New(msg)}
}

func wrapError(kind ErrorKind, paymentID string, err error) *Error {
	return &Error{Kind: kind, PaymentID: paymentID, Err: err}
}
