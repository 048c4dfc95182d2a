// Package treasury is the value-transfer collaborator of the ledger. The
// engine calls it inside a store commit so that moving funds and recording
// them succeed or fail together.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/adledger/internal/model"
)

// ErrInsufficientReserve is returned when a payout exceeds the value held.
var ErrInsufficientReserve = errors.New("treasury: insufficient reserve")

// Treasury moves value into and out of the system.
type Treasury interface {
	// Collect receives amount from a bidder.
	Collect(ctx context.Context, from model.Address, amount decimal.Decimal) error

	// Payout sends amount to a beneficiary.
	Payout(ctx context.Context, to model.Address, amount decimal.Decimal) error
}

// Direction of a recorded transfer.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Transfer is one recorded movement of value.
type Transfer struct {
	Direction    string
	Counterparty model.Address
	Amount       decimal.Decimal
	At           time.Time
}

// Journal is an in-process Treasury that records every transfer and tracks
// the reserve it holds.
type Journal struct {
	mu        sync.Mutex
	reserve   decimal.Decimal
	transfers []Transfer
	failNext  error
}

// NewJournal creates a journal holding the given opening reserve.
func NewJournal(reserve decimal.Decimal) *Journal {
	return &Journal{reserve: reserve}
}

func (j *Journal) Collect(_ context.Context, from model.Address, amount decimal.Decimal) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.takeFailure(); err != nil {
		return err
	}
	j.reserve = j.reserve.Add(amount)
	j.transfers = append(j.transfers, Transfer{
		Direction:    DirectionIn,
		Counterparty: from,
		Amount:       amount,
		At:           time.Now().UTC(),
	})
	slog.Debug("treasury collect", "from", from.String(), "amount", amount.String())
	return nil
}

func (j *Journal) Payout(_ context.Context, to model.Address, amount decimal.Decimal) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.takeFailure(); err != nil {
		return err
	}
	if amount.GreaterThan(j.reserve) {
		return fmt.Errorf("%w: want %s, hold %s", ErrInsufficientReserve, amount, j.reserve)
	}
	j.reserve = j.reserve.Sub(amount)
	j.transfers = append(j.transfers, Transfer{
		Direction:    DirectionOut,
		Counterparty: to,
		Amount:       amount,
		At:           time.Now().UTC(),
	})
	slog.Debug("treasury payout", "to", to.String(), "amount", amount.String())
	return nil
}

// FailNext makes the next Collect or Payout return err without moving value.
func (j *Journal) FailNext(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failNext = err
}

func (j *Journal) takeFailure() error {
	err := j.failNext
	j.failNext = nil
	return err
}

// Reserve returns the value currently held.
func (j *Journal) Reserve() decimal.Decimal {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reserve
}

// Transfers returns a copy of all recorded transfers in order.
func (j *Journal) Transfers() []Transfer {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Transfer, len(j.transfers))
	copy(out, j.transfers)
	return out
}
