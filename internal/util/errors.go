// internal/util/errors.go
package util

import "errors"

// Common ledger errors. Service methods wrap these with context; callers
// should match them with errors.Is (or IsError).
var (
	ErrInvalidInput        = errors.New("invalid input provided")
	ErrInvalidAmount       = errors.New("amount must be greater than zero with at most 4 decimal places")
	ErrInvalidReason       = errors.New("unknown reason code")
	ErrInsufficientBalance = errors.New("insufficient points balance")
	ErrAccountNotFound     = errors.New("points account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyReversed     = errors.New("transaction already reversed")
	ErrReversalNotAllowed  = errors.New("reversal transactions cannot be reversed")
	ErrAccountLockTimeout  = errors.New("timed out acquiring account lock")
)

// IsError reports whether any error in err's chain matches target.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}
