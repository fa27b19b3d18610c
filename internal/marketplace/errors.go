package marketplace

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure into one of the stable error kinds
// surfaced to callers. Kinds are part of the API contract; messages are not.
type Kind string

const (
	KindNotFound                  Kind = "not_found"
	KindForbidden                 Kind = "forbidden"
	KindInvalidTransition         Kind = "invalid_transition"
	KindDuplicateBid              Kind = "duplicate_bid"
	KindProjectNotBiddable        Kind = "project_not_biddable"
	KindBudgetOutOfRange          Kind = "budget_out_of_range"
	KindInvalidState              Kind = "invalid_state"
	KindExpertNotVerified         Kind = "expert_not_verified"
	KindNoActiveContract          Kind = "no_active_contract"
	KindInsufficientEscrowBalance Kind = "insufficient_escrow_balance"
	KindConflictRetryable         Kind = "conflict_retryable"
	KindGatewayFailure            Kind = "gateway_failure"
)

// Error carries a stable kind alongside a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates an Error of the given kind with a formatted message.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error of the given kind wrapping an underlying cause.
func WrapError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, or an empty Kind when err is not a
// marketplace error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the caller should retry the operation. Only
// benign concurrent-mutation conflicts qualify.
func Retryable(err error) bool {
	return IsKind(err, KindConflictRetryable)
}
