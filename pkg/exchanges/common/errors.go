package common

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData marks candle input shorter than an analysis window.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrRateBudgetExceeded is returned only for requests that can never fit a window,
	// or when the caller gives up waiting for admission.
	ErrRateBudgetExceeded = errors.New("rate budget exceeded")
)

// InputValidationError reports malformed market data.
type InputValidationError struct {
	Field  string
	Reason string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Reason)
}

// PrecisionError reports an order that fails venue step size or notional filters.
type PrecisionError struct {
	Symbol string
	Field  string
	Value  string
	Reason string
}

func (e *PrecisionError) Error() string {
	return fmt.Sprintf("precision %s %s=%s: %s", e.Symbol, e.Field, e.Value, e.Reason)
}

// ExchangeRejection is a venue 4xx or business error; the order was not created.
type ExchangeRejection struct {
	Status  int
	Code    int64
	Message string
}

func (e *ExchangeRejection) Error() string {
	return fmt.Sprintf("exchange rejected (status %d code %d): %s", e.Status, e.Code, e.Message)
}

// TransientNetworkError wraps timeouts, 5xx and throttling responses.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a TransientNetworkError.
func IsTransient(err error) bool {
	var te *TransientNetworkError
	return errors.As(err, &te)
}

// IsRejection reports whether err is an ExchangeRejection.
func IsRejection(err error) bool {
	var re *ExchangeRejection
	return errors.As(err, &re)
}

// IsPrecision reports whether err is a PrecisionError.
func IsPrecision(err error) bool {
	var pe *PrecisionError
	return errors.As(err, &pe)
}
