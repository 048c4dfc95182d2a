package treasury_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atmx/adledger/internal/model"
	"github.com/atmx/adledger/internal/treasury"
)

var alice = model.MustParseAddress("0x0000000000000000000000000000000000000001")

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func TestJournal_CollectAndPayout(t *testing.T) {
	ctx := context.Background()
	j := treasury.NewJournal(d(5))

	require.NoError(t, j.Collect(ctx, alice, d(10)))
	require.True(t, j.Reserve().Equal(d(15)))

	require.NoError(t, j.Payout(ctx, alice, d(15)))
	require.True(t, j.Reserve().IsZero())

	transfers := j.Transfers()
	require.Len(t, transfers, 2)
	require.Equal(t, treasury.DirectionIn, transfers[0].Direction)
	require.Equal(t, treasury.DirectionOut, transfers[1].Direction)
	require.Equal(t, alice, transfers[1].Counterparty)
}

func TestJournal_RefusesOverdraw(t *testing.T) {
	j := treasury.NewJournal(d(1))

	err := j.Payout(context.Background(), alice, d(2))
	require.ErrorIs(t, err, treasury.ErrInsufficientReserve)
	require.True(t, j.Reserve().Equal(d(1)))
	require.Empty(t, j.Transfers())
}

func TestJournal_FailNext(t *testing.T) {
	ctx := context.Background()
	j := treasury.NewJournal(decimal.Zero)
	boom := errors.New("rejected")

	j.FailNext(boom)
	require.ErrorIs(t, j.Collect(ctx, alice, d(3)), boom)
	require.True(t, j.Reserve().IsZero())

	// Only the next call fails.
	require.NoError(t, j.Collect(ctx, alice, d(3)))
	require.True(t, j.Reserve().Equal(d(3)))
}
