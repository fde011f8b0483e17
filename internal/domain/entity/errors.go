package entity

import "errors"

// Error categories. Wrap with fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	// ErrUnsupportedAsset: the asset or opportunity is not handled by the callee.
	ErrUnsupportedAsset = errors.New("unsupported asset")
	// ErrNotFound: the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCAIP: a chain, account or asset id is malformed.
	ErrInvalidCAIP = errors.New("invalid caip identifier")
	// ErrTransient: network or upstream failure, safe to retry.
	ErrTransient = errors.New("transient failure")
	// ErrNoActiveAccount: a tracked flow was started with no account selected.
	ErrNoActiveAccount = errors.New("no active account")
	// ErrInsufficientFunds: the fee asset balance does not cover the estimated gas.
	ErrInsufficientFunds = errors.New("insufficient funds for gas")
)

// IsRetryable reports whether err belongs to the transient category.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
