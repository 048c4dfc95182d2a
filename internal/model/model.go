// Package model defines the core domain types shared across the ledger.
// All monetary values use shopspring/decimal in integral base units.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event names emitted on successful mutations.
const (
	EventInitialized           = "Initialized"
	EventRegistered            = "Registered"
	EventBidRecorded           = "BidRecorded"
	EventSettled               = "Settled"
	EventWithdrawn             = "Withdrawn"
	EventTrustedServiceChanged = "TrustedServiceChanged"
	EventOwnershipTransferred  = "OwnershipTransferred"
)

// Bid is an escrowed bid. Bids are append-only; only Settled changes.
type Bid struct {
	ID             uint64          `json:"id" cbor:"1,keyasint"`
	Sender         Address         `json:"sender" cbor:"2,keyasint"`
	DeclaredAmount decimal.Decimal `json:"declared_amount" cbor:"3,keyasint"`
	EscrowedValue  decimal.Decimal `json:"escrowed_value" cbor:"4,keyasint"`
	Settled        bool            `json:"settled" cbor:"5,keyasint"`
	CreatedAt      time.Time       `json:"created_at" cbor:"6,keyasint"`
}

// Event is an audit record for one committed operation. Success is always
// true for recorded events; failures never produce one.
type Event struct {
	ID      string          `json:"id" cbor:"1,keyasint"`
	Seq     uint64          `json:"seq" cbor:"2,keyasint"`
	Name    string          `json:"name" cbor:"3,keyasint"`
	Success bool            `json:"success" cbor:"4,keyasint"`
	Caller  Address         `json:"caller" cbor:"5,keyasint"`
	Subject Address         `json:"subject" cbor:"6,keyasint"`
	BidID   uint64          `json:"bid_id,omitempty" cbor:"7,keyasint,omitempty"`
	Amount  decimal.Decimal `json:"amount" cbor:"8,keyasint"`
	At      time.Time       `json:"at" cbor:"9,keyasint"`
}

// Access holds the two privileged identities.
type Access struct {
	Owner          Address `json:"owner" cbor:"1,keyasint"`
	TrustedService Address `json:"trusted_service" cbor:"2,keyasint"`
}

// Change is the write set of one operation. Balances and TotalBalance hold
// absolute post-operation values, so applying a Change twice is harmless.
type Change struct {
	Access       *Access                     `cbor:"1,keyasint,omitempty"`
	Register     *Address                    `cbor:"2,keyasint,omitempty"`
	Bid          *Bid                        `cbor:"3,keyasint,omitempty"`
	Balances     map[Address]decimal.Decimal `cbor:"4,keyasint,omitempty"`
	TotalBalance *decimal.Decimal            `cbor:"5,keyasint,omitempty"`
	Event        Event                       `cbor:"6,keyasint"`
}
