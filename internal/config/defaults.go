package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/adledger/internal/auth"
	"github.com/atmx/adledger/internal/events"
	"github.com/atmx/adledger/internal/ledger"
)

// Default values for optional configuration fields.
const (
	DefaultPort            = 8080
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultLogLevel        = "info"
	DefaultAuthMode        = auth.ModeHeader
	DefaultMaxSkew         = 5 * time.Minute
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = DefaultIdleTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = DefaultRequestTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// Ledger defaults
	if c.Ledger.Name == "" {
		c.Ledger.Name = ledger.DefaultName
	}
	if c.Ledger.EscrowMultiplier == 0 {
		c.Ledger.EscrowMultiplier = ledger.DefaultEscrowMultiplier
	}
	if c.Ledger.StrictShareSum == nil {
		strict := true
		c.Ledger.StrictShareSum = &strict
	}

	if c.Redis.Channel == "" {
		c.Redis.Channel = events.DefaultChannel
	}

	// Auth defaults
	if c.Auth.Mode == "" {
		c.Auth.Mode = DefaultAuthMode
	}
	if c.Auth.MaxSkew == 0 {
		c.Auth.MaxSkew = DefaultMaxSkew
	}
}

// Params converts the ledger section to engine params. Call after defaults
// have been applied.
func (l LedgerConfig) Params() ledger.Params {
	p := ledger.DefaultParams()
	if l.Name != "" {
		p.Name = l.Name
	}
	if l.EscrowMultiplier != 0 {
		p.EscrowMultiplier = decimal.NewFromInt(l.EscrowMultiplier)
	}
	if l.StrictShareSum != nil {
		p.StrictShareSum = *l.StrictShareSum
	}
	p.AllowResettle = l.AllowResettle
	return p
}
