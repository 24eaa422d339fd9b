package exec

import (
	"errors"
	"fmt"
)

// Kind classifies a coordinator failure so callers know whether retrying
// the same operation is safe.
type Kind string

const (
	// KindState: wrong status, expired, not found, unauthorized.
	// Terminal for the call; the order was not touched beyond any
	// documented transition (e.g. the expiry flip).
	KindState Kind = "state"
	// KindInfra: network or adapter failure. The order stays PENDING
	// and the same call may be retried.
	KindInfra Kind = "infrastructure"
	// KindOnchain: the transaction mined but reverted. The order stays
	// PENDING; callers should re-estimate before resubmitting.
	KindOnchain Kind = "onchain"
)

var (
	ErrExpired          = errors.New("order deadline has passed")
	ErrGasEstimation    = errors.New("gas estimation failed")
	ErrOnchainExecution = errors.New("transaction reverted on-chain")
	ErrReceiptNotFound  = errors.New("no receipt for transaction")
)

// Error wraps a failure with its taxonomy kind and a human-readable
// reason. Checked via errors.Is/As against the wrapped sentinel.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func stateErr(reason string, err error) *Error {
	return &Error{Kind: KindState, Reason: reason, Err: err}
}

func infraErr(reason string, err error) *Error {
	return &Error{Kind: KindInfra, Reason: reason, Err: err}
}

func onchainErr(reason string, err error) *Error {
	return &Error{Kind: KindOnchain, Reason: reason, Err: err}
}

// Retryable reports whether the failure is an infrastructure error that
// left the order PENDING.
func Retryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindInfra
}
