package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/atmx/adledger/internal/ledger"
	"github.com/atmx/adledger/internal/model"
	"github.com/atmx/adledger/internal/store"
	"github.com/atmx/adledger/internal/treasury"
)

var participants = []model.Address{u1, u2, u3, service}

// Value is conserved: what the ledger holds always equals unsettled escrow
// plus every withdrawable balance, and matches the treasury reserve.
func TestProperty_ValueConservation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		journal := treasury.NewJournal(decimal.Zero)
		eng, err := ledger.NewEngine(ctx, store.NewMemoryStore(), journal, ledger.DefaultParams())
		if err != nil {
			rt.Fatalf("new engine: %v", err)
		}
		if _, err := eng.Initialize(ctx, owner); err != nil {
			rt.Fatalf("initialize: %v", err)
		}

		pick := rapid.SampledFrom(participants)
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				eng.Register(ctx, pick.Draw(rt, "who"))
			case 1:
				declared := decimal.NewFromInt(rapid.Int64Range(1, 1000).Draw(rt, "declared"))
				eng.Bid(ctx, pick.Draw(rt, "bidder"), declared, declared.Mul(decimal.NewFromInt(ledger.DefaultEscrowMultiplier)))
			case 2:
				bids := eng.ListBids()
				if len(bids) == 0 {
					continue
				}
				bid := bids[rapid.IntRange(0, len(bids)-1).Draw(rt, "bid")]
				holders, shares := split(rt, bid.EscrowedValue)
				eng.Settle(ctx, owner, bid.ID, holders, shares)
			case 3:
				eng.WithdrawMoney(ctx, owner, pick.Draw(rt, "beneficiary"))
			}

			checkConservation(rt, eng, journal)
		}
	})
}

// A bid succeeds exactly when the transferred value is declared × multiplier;
// every other transferred value is an incorrect amount.
func TestProperty_BidAmount(t *testing.T) {
	multiplier := decimal.NewFromInt(ledger.DefaultEscrowMultiplier)
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		journal := treasury.NewJournal(decimal.Zero)
		eng, err := ledger.NewEngine(ctx, store.NewMemoryStore(), journal, ledger.DefaultParams())
		if err != nil {
			rt.Fatalf("new engine: %v", err)
		}
		if _, err := eng.Initialize(ctx, owner); err != nil {
			rt.Fatalf("initialize: %v", err)
		}
		if _, err := eng.Register(ctx, u1); err != nil {
			rt.Fatalf("register: %v", err)
		}

		declared := decimal.NewFromInt(rapid.Int64Range(0, 1_000_000).Draw(rt, "declared"))
		required := declared.Mul(multiplier)
		var transferred decimal.Decimal
		switch rapid.IntRange(0, 2).Draw(rt, "shape") {
		case 0:
			transferred = required
		case 1:
			transferred = decimal.NewFromInt(rapid.Int64Range(-5_000_000, 5_000_000).Draw(rt, "transferred"))
		case 2:
			// Fractional value: whole part plus 0.5.
			transferred = decimal.NewFromInt(rapid.Int64Range(-5_000_000, 5_000_000).Draw(rt, "whole")).Add(decimal.New(5, -1))
		}

		_, _, err = eng.Bid(ctx, u1, declared, transferred)
		if transferred.Equal(required) {
			if err != nil {
				rt.Fatalf("bid %s with %s: %v", declared, transferred, err)
			}
			return
		}
		if !errors.Is(err, ledger.ErrIncorrectAmount) {
			rt.Fatalf("bid %s with %s: got %v, want incorrect amount", declared, transferred, err)
		}
		if !journal.Reserve().IsZero() {
			rt.Fatalf("reserve moved to %s on a rejected bid", journal.Reserve())
		}
	})
}

// split divides total into 1..3 shares among drawn participants.
func split(rt *rapid.T, total decimal.Decimal) ([]model.Address, []decimal.Decimal) {
	n := rapid.IntRange(1, 3).Draw(rt, "holders")
	holders := make([]model.Address, n)
	shares := make([]decimal.Decimal, n)
	rest := total
	for i := 0; i < n; i++ {
		holders[i] = rapid.SampledFrom(participants).Draw(rt, "holder")
		if i == n-1 {
			shares[i] = rest
			break
		}
		part := decimal.NewFromInt(rapid.Int64Range(0, rest.IntPart()).Draw(rt, "share"))
		shares[i] = part
		rest = rest.Sub(part)
	}
	return holders, shares
}

func checkConservation(rt *rapid.T, eng *ledger.Engine, journal *treasury.Journal) {
	st := eng.Snapshot()

	held := decimal.Zero
	for _, b := range st.Bids {
		if !b.Settled {
			held = held.Add(b.EscrowedValue)
		}
	}
	for _, bal := range st.Balances {
		if bal.IsNegative() {
			rt.Fatalf("negative balance %s", bal)
		}
		held = held.Add(bal)
	}

	if !held.Equal(st.TotalBalance) {
		rt.Fatalf("escrow + balances = %s, total balance = %s", held, st.TotalBalance)
	}
	if !journal.Reserve().Equal(st.TotalBalance) {
		rt.Fatalf("treasury reserve %s, total balance %s", journal.Reserve(), st.TotalBalance)
	}
}
