package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// DefaultName is the descriptive name returned by Name.
	DefaultName = "Advertisement"

	// DefaultEscrowMultiplier is the ratio of escrowed value to declared bid
	// amount.
	DefaultEscrowMultiplier int64 = 3
)

// Params are the fixed rules of a ledger instance.
type Params struct {
	Name string

	// EscrowMultiplier: a bid must transfer exactly declared × multiplier.
	EscrowMultiplier decimal.Decimal

	// StrictShareSum requires settlement shares to sum to the bid's escrow.
	StrictShareSum bool

	// AllowResettle permits settling the same bid more than once.
	AllowResettle bool
}

// DefaultParams returns the conservative defaults: strict share sums and a
// single settlement per bid.
func DefaultParams() Params {
	return Params{
		Name:             DefaultName,
		EscrowMultiplier: decimal.NewFromInt(DefaultEscrowMultiplier),
		StrictShareSum:   true,
		AllowResettle:    false,
	}
}

// Validate checks the params are usable.
func (p Params) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("ledger: name is required")
	}
	if !p.EscrowMultiplier.IsPositive() || !p.EscrowMultiplier.IsInteger() {
		return fmt.Errorf("ledger: escrow multiplier must be a positive integer, got %s", p.EscrowMultiplier)
	}
	return nil
}

// validAmount reports whether a is a non-negative whole number of base units.
func validAmount(a decimal.Decimal) bool {
	return !a.IsNegative() && a.IsInteger()
}
