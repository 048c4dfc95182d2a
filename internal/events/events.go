// Package events fans committed ledger events out to observers: connected
// WebSocket clients and a Redis pub/sub channel.
package events

import (
	"encoding/json"
	"time"

	"github.com/atmx/adledger/internal/model"
)

// Message is the JSON wire form of a ledger event.
type Message struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Seq     uint64 `json:"seq"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Caller  string `json:"caller"`
	Subject string `json:"subject"`
	BidID   uint64 `json:"bid_id,omitempty"`
	Amount  string `json:"amount,omitempty"`
	At      string `json:"at"`
}

// NewMessage converts a ledger event to its wire form.
func NewMessage(e model.Event) Message {
	m := Message{
		Type:    "ledger_event",
		ID:      e.ID,
		Seq:     e.Seq,
		Name:    e.Name,
		Success: e.Success,
		Caller:  e.Caller.String(),
		Subject: e.Subject.String(),
		BidID:   e.BidID,
		At:      e.At.UTC().Format(time.RFC3339Nano),
	}
	if !e.Amount.IsZero() {
		m.Amount = e.Amount.String()
	}
	return m
}

func encode(e model.Event) ([]byte, error) {
	return json.Marshal(NewMessage(e))
}
