// Package auctionerr holds the error taxonomy shared by the store, the engine
// and the transport layers.
package auctionerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindBusinessRule
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusinessRule:
		return "business_rule"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a typed rejection with a stable code. Two errors match under
// errors.Is when their codes are equal, so a sentinel may be refined with
// a more specific message without breaking comparisons.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Withf returns a copy of e carrying a formatted message.
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), cause: e.cause}
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidInput = newErr(KindValidation, "invalid_input", "invalid input")

	ErrAuctionNotActive    = newErr(KindBusinessRule, "auction_not_active", "auction is not active")
	ErrAuctionWindowClosed = newErr(KindBusinessRule, "auction_window_closed", "auction is outside its bidding window")
	ErrBidTooLow           = newErr(KindBusinessRule, "bid_too_low", "bid must be higher than current price")
	ErrInvalidPrecision    = newErr(KindBusinessRule, "invalid_precision", "amount can have at most 2 decimal places")
	ErrInsufficientFunds   = newErr(KindBusinessRule, "insufficient_funds", "insufficient wallet balance")
	ErrCeilingTooLow       = newErr(KindBusinessRule, "ceiling_too_low", "maximum amount must be higher than current price")

	ErrInvalidTransition = newErr(KindConflict, "invalid_transition", "invalid auction status transition")
	ErrAuctionActive     = newErr(KindConflict, "auction_active", "auction is active")
	ErrVersionConflict   = newErr(KindConflict, "version_conflict", "auction changed concurrently")
	ErrAuctionExists     = newErr(KindConflict, "auction_exists", "auction already exists")

	ErrAuctionNotFound = newErr(KindNotFound, "auction_not_found", "auction not found")

	ErrProxyNotConverged = newErr(KindInternal, "proxy_not_converged", "proxy bid resolution did not converge")
	ErrInternal          = newErr(KindInternal, "internal_error", "internal error")
)

// Invalid builds a validation error with a caller-facing message.
func Invalid(format string, args ...any) *Error {
	return ErrInvalidInput.Withf(format, args...)
}

// Internal wraps an infrastructure failure. A nil err yields nil.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindInternal, Code: ErrInternal.Code, Message: ErrInternal.Message, cause: err}
}

// KindOf reports the taxonomy bucket of err; untyped errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the stable code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}
