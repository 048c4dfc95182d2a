package config

import (
	"errors"
	"fmt"

	"github.com/atmx/adledger/internal/auth"
	"github.com/atmx/adledger/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must be >= 0")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	if c.Ledger.EscrowMultiplier < 1 {
		return fmt.Errorf("ledger.escrow_multiplier must be >= 1, got %d", c.Ledger.EscrowMultiplier)
	}
	if err := validateAddress("ledger.owner", c.Ledger.Owner); err != nil {
		return err
	}
	if err := validateAddress("ledger.trusted_service", c.Ledger.TrustedService); err != nil {
		return err
	}
	if c.Ledger.TrustedService != "" && c.Ledger.Owner == "" {
		return errors.New("ledger.trusted_service requires ledger.owner")
	}

	switch c.Auth.Mode {
	case auth.ModeHeader, auth.ModeSignature:
	default:
		return fmt.Errorf("auth.mode must be %q or %q, got %q", auth.ModeHeader, auth.ModeSignature, c.Auth.Mode)
	}
	if c.Auth.MaxSkew < 0 {
		return errors.New("auth.max_skew must be >= 0")
	}

	return nil
}

func validateAddress(field, s string) error {
	if s == "" {
		return nil
	}
	a, err := model.ParseAddress(s)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if a.IsZero() {
		return fmt.Errorf("%s must not be the zero address", field)
	}
	return nil
}
