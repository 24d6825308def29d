package stocks

import (
	"errors"
	"fmt"
)

// ErrDivisionByZero reports a quote payload whose previous close is zero, in
// which case no percent change can be computed.
var ErrDivisionByZero = errors.New("previous close is zero")

// MalformedDataError reports an upstream payload missing a required numeric
// field, or carrying a non-numeric value in it.
type MalformedDataError struct {
	Field string
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("malformed upstream data: field %q missing or not numeric", e.Field)
}

// StockAPIError is the umbrella error surfaced to the HTTP layer. It names
// the symbol (or search keyword) the failed operation was about and wraps
// the underlying cause.
type StockAPIError struct {
	Symbol string
	Err    error
}

func (e *StockAPIError) Error() string {
	return fmt.Sprintf("stock api: %s: %v", e.Symbol, e.Err)
}

func (e *StockAPIError) Unwrap() error { return e.Err }
