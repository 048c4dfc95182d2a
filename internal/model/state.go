package model

import "github.com/shopspring/decimal"

// State is the complete ledger state.
type State struct {
	Initialized  bool                        `cbor:"1,keyasint"`
	Access       Access                      `cbor:"2,keyasint"`
	Registered   map[Address]bool            `cbor:"3,keyasint"`
	Bids         []Bid                       `cbor:"4,keyasint"`
	Balances     map[Address]decimal.Decimal `cbor:"5,keyasint"`
	TotalBalance decimal.Decimal             `cbor:"6,keyasint"`
	Events       []Event                     `cbor:"7,keyasint"`
}

// NewState returns an empty, uninitialized state.
func NewState() *State {
	return &State{
		Registered: make(map[Address]bool),
		Balances:   make(map[Address]decimal.Decimal),
	}
}

// Apply folds a committed change into the state.
func (s *State) Apply(c Change) {
	if c.Access != nil {
		s.Initialized = true
		s.Access = *c.Access
	}
	if c.Register != nil {
		s.Registered[*c.Register] = true
	}
	if c.Bid != nil {
		b := *c.Bid
		if idx := int(b.ID) - 1; idx >= 0 && idx < len(s.Bids) {
			s.Bids[idx] = b
		} else {
			s.Bids = append(s.Bids, b)
		}
	}
	for addr, bal := range c.Balances {
		if bal.IsZero() {
			delete(s.Balances, addr)
			continue
		}
		s.Balances[addr] = bal
	}
	if c.TotalBalance != nil {
		s.TotalBalance = *c.TotalBalance
	}
	if c.Event.Name != "" {
		s.Events = append(s.Events, c.Event)
	}
}

// Clone returns a deep copy safe to hand outside the owning lock.
func (s *State) Clone() *State {
	out := &State{
		Initialized:  s.Initialized,
		Access:       s.Access,
		Registered:   make(map[Address]bool, len(s.Registered)),
		Bids:         make([]Bid, len(s.Bids)),
		Balances:     make(map[Address]decimal.Decimal, len(s.Balances)),
		TotalBalance: s.TotalBalance,
		Events:       make([]Event, len(s.Events)),
	}
	for k, v := range s.Registered {
		out.Registered[k] = v
	}
	copy(out.Bids, s.Bids)
	for k, v := range s.Balances {
		out.Balances[k] = v
	}
	copy(out.Events, s.Events)
	return out
}

// NextEventSeq is the sequence number the next event will carry.
func (s *State) NextEventSeq() uint64 {
	return uint64(len(s.Events)) + 1
}
