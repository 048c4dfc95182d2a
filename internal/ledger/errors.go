package ledger

import "errors"

// Sentinel errors. Every failure returned by the engine wraps exactly one of
// these with a human-readable reason; match with errors.Is.
var (
	ErrUnauthorized       = errors.New("ledger: unauthorized")
	ErrNotRegistered      = errors.New("ledger: not registered")
	ErrAlreadyRegistered  = errors.New("ledger: already registered")
	ErrIncorrectAmount    = errors.New("ledger: incorrect amount")
	ErrInvalidAmount      = errors.New("ledger: invalid amount")
	ErrInvalidShareholder = errors.New("ledger: invalid shareholder")
	ErrShareMismatch      = errors.New("ledger: shareholders and shares mismatch")
	ErrShareSumMismatch   = errors.New("ledger: shares do not sum to escrowed value")
	ErrBidNotFound        = errors.New("ledger: bid not found")
	ErrBidAlreadySettled  = errors.New("ledger: bid already settled")
	ErrNothingToWithdraw  = errors.New("ledger: nothing to withdraw")
	ErrInsufficientFunds  = errors.New("ledger: insufficient funds held")
	ErrNotInitialized     = errors.New("ledger: not initialized")
	ErrAlreadyInitialized = errors.New("ledger: already initialized")
	ErrInvalidIdentity    = errors.New("ledger: invalid identity")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrUnauthorized, "Unauthorized"},
	{ErrNotRegistered, "NotRegistered"},
	{ErrAlreadyRegistered, "AlreadyRegistered"},
	{ErrIncorrectAmount, "IncorrectAmount"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidShareholder, "InvalidShareholder"},
	{ErrShareMismatch, "ShareMismatch"},
	{ErrShareSumMismatch, "ShareSumMismatch"},
	{ErrBidNotFound, "BidNotFound"},
	{ErrBidAlreadySettled, "BidAlreadySettled"},
	{ErrNothingToWithdraw, "NothingToWithdraw"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrNotInitialized, "NotInitialized"},
	{ErrAlreadyInitialized, "AlreadyInitialized"},
	{ErrInvalidIdentity, "InvalidIdentity"},
}

// Kind returns the stable error kind name for err, or "Internal" when err
// does not wrap a ledger sentinel.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
