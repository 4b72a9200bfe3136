// Package engerr defines the engine's typed error kinds (spec §7) as
// sentinel errors that compose with the standard errors.Is/errors.As
// machinery, and the JSON envelope the HTTP boundary renders them as.
package engerr

import "errors"

// Kind identifies one of the engine's distinct failure modes. Validation
// failures always carry one of these so callers (and the HTTP boundary)
// can branch on failure class rather than string-matching messages.
type Kind string

const (
	MarketClosed        Kind = "MarketClosed"
	TradingHalted        Kind = "TradingHalted"
	UnknownSymbol        Kind = "UnknownSymbol"
	NotListedYet         Kind = "NotListedYet"
	Delisted             Kind = "Delisted"
	InsufficientCash     Kind = "InsufficientCash"
	InsufficientShares   Kind = "InsufficientShares"
	InsufficientFloat    Kind = "InsufficientFloat"
	LimitNotCrossed      Kind = "LimitNotCrossed"
	CreditTooLow         Kind = "CreditTooLow"
	LoanUnavailable      Kind = "LoanUnavailable"
	ConcentrationExceeded Kind = "ConcentrationExceeded"
	LeverageExceeded     Kind = "LeverageExceeded"
	EventAlreadyApplied  Kind = "EventAlreadyApplied"
	NotFound             Kind = "NotFound"
	InvalidArgument      Kind = "InvalidArgument"
)

// Error wraps a Kind with a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Envelope is the JSON shape the HTTP boundary renders an *Error as.
type Envelope struct {
	Error   bool   `json:"error"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToEnvelope converts err into the HTTP-facing JSON envelope. Errors that
// are not *Error are rendered with kind "InvalidArgument" so the boundary
// never leaks an internal error shape.
func ToEnvelope(err error) Envelope {
	var e *Error
	if errors.As(err, &e) {
		return Envelope{Error: true, Kind: string(e.Kind), Message: e.Message}
	}
	return Envelope{Error: true, Kind: string(InvalidArgument), Message: err.Error()}
}

// HTTPStatus maps a Kind to the HTTP status code the boundary should use.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound, UnknownSymbol:
		return 404
	case MarketClosed, TradingHalted, InsufficientCash, InsufficientShares,
		InsufficientFloat, LimitNotCrossed, CreditTooLow, LoanUnavailable,
		ConcentrationExceeded, LeverageExceeded, NotListedYet, Delisted,
		EventAlreadyApplied, InvalidArgument:
		return 422
	default:
		return 500
	}
}
