package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for non-positive quantities or prices
	// on any mutating call. Rejected before any state is read.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOrderNotFound is returned when an operation references a stale
	// or removed order id. Treated as a no-op failure, never fatal.
	ErrOrderNotFound = errors.New("order not found")

	// ErrUnknownUser is returned when an operation references a user the
	// ledger has never seen.
	ErrUnknownUser = errors.New("unknown user")

	// ErrUnauthorized is returned when a non-privileged caller invokes
	// an admin-only operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUserExists is returned on registration of a taken username.
	ErrUserExists = errors.New("username already exists")
)

// InsufficientFundsError reports a settlement debit that would breach the
// non-negative balance invariant. The settlement is rejected atomically;
// the error identifies which party and denomination failed.
type InsufficientFundsError struct {
	User         string
	Denomination string // "cash" or "coin"
	Need         float64
	Have         float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient %s for %s: need %g, have %g",
		e.Denomination, e.User, e.Need, e.Have)
}

// IsInsufficientFunds reports whether err is an InsufficientFundsError.
func IsInsufficientFunds(err error) bool {
	var ife *InsufficientFundsError
	return errors.As(err, &ife)
}
