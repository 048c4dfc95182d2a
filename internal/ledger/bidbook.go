package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/adledger/internal/model"
)

// planBid validates a bid against the current state and returns the record
// that would be stored. It does not mutate st.
func planBid(st *model.State, p Params, caller model.Address, declared, transferred decimal.Decimal, now time.Time) (model.Bid, error) {
	if err := requireRegistered(st, caller); err != nil {
		return model.Bid{}, err
	}
	if !validAmount(declared) {
		return model.Bid{}, fmt.Errorf("%w: declared amount must be a non-negative integer, got %s", ErrInvalidAmount, declared)
	}
	// The multiplier is a whole number, so any transferred value other than
	// the exact product is an incorrect amount, fractional or negative alike.
	if required := declared.Mul(p.EscrowMultiplier); !transferred.Equal(required) {
		return model.Bid{}, fmt.Errorf("%w: Amount is not correct (want %s, got %s)", ErrIncorrectAmount, required, transferred)
	}

	return model.Bid{
		ID:             uint64(len(st.Bids)) + 1,
		Sender:         caller,
		DeclaredAmount: declared,
		EscrowedValue:  transferred,
		CreatedAt:      now,
	}, nil
}

// lookupBid returns the bid with the given id.
func lookupBid(st *model.State, id uint64) (model.Bid, error) {
	if id == 0 || id > uint64(len(st.Bids)) {
		return model.Bid{}, fmt.Errorf("%w: %d", ErrBidNotFound, id)
	}
	return st.Bids[id-1], nil
}
