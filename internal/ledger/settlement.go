package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/adledger/internal/model"
)

// settlementPlan is the validated outcome of a settlement, ready to commit.
type settlementPlan struct {
	bid      model.Bid
	balances map[model.Address]decimal.Decimal
	total    decimal.Decimal
}

// planSettlement is phase one of a settlement: it validates the whole batch
// and computes the resulting balances without touching st. Checks run in a
// fixed order so the reported error is deterministic.
func planSettlement(st *model.State, p Params, caller model.Address, bidID uint64, holders []model.Address, shares []decimal.Decimal) (settlementPlan, error) {
	if err := requireTrustedService(st.Access, caller); err != nil {
		return settlementPlan{}, err
	}
	bid, err := lookupBid(st, bidID)
	if err != nil {
		return settlementPlan{}, err
	}
	if bid.Settled && !p.AllowResettle {
		return settlementPlan{}, fmt.Errorf("%w: %d", ErrBidAlreadySettled, bidID)
	}
	if len(holders) == 0 || len(holders) != len(shares) {
		return settlementPlan{}, fmt.Errorf("%w: %d shareholders, %d shares", ErrShareMismatch, len(holders), len(shares))
	}

	sum := decimal.Zero
	for i, h := range holders {
		if h.IsZero() {
			return settlementPlan{}, fmt.Errorf("%w: Invalid shareholder at position %d", ErrInvalidShareholder, i)
		}
		if !st.Registered[h] {
			return settlementPlan{}, fmt.Errorf("%w: Shareholder is not registered: %s", ErrNotRegistered, h)
		}
		if !validAmount(shares[i]) {
			return settlementPlan{}, fmt.Errorf("%w: share at position %d is %s", ErrInvalidAmount, i, shares[i])
		}
		sum = sum.Add(shares[i])
	}
	if p.StrictShareSum && !sum.Equal(bid.EscrowedValue) {
		return settlementPlan{}, fmt.Errorf("%w: shares sum to %s, escrow is %s", ErrShareSumMismatch, sum, bid.EscrowedValue)
	}

	// Phase two input: absolute balances after crediting in list order.
	balances := make(map[model.Address]decimal.Decimal, len(holders))
	for i, h := range holders {
		cur, ok := balances[h]
		if !ok {
			cur = st.Balances[h]
		}
		balances[h] = credit(cur, shares[i])
	}

	bid.Settled = true
	return settlementPlan{
		bid:      bid,
		balances: balances,
		total:    st.TotalBalance,
	}, nil
}
