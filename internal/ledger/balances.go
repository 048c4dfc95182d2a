package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/adledger/internal/model"
)

func credit(balance, amount decimal.Decimal) decimal.Decimal {
	return balance.Add(amount)
}

// planWithdraw returns the amount that withdrawing beneficiary's balance
// would pay out.
func planWithdraw(st *model.State, caller, beneficiary model.Address) (decimal.Decimal, error) {
	if err := requireOwner(st.Access, caller); err != nil {
		return decimal.Zero, err
	}
	amount := st.Balances[beneficiary]
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s has no withdrawable balance", ErrNothingToWithdraw, beneficiary)
	}
	if amount.GreaterThan(st.TotalBalance) {
		return decimal.Zero, fmt.Errorf("%w: balance %s exceeds total held %s", ErrInsufficientFunds, amount, st.TotalBalance)
	}
	return amount, nil
}
