package config

import (
	"fmt"
	"strings"
)

// ValidateConfig checks that the configuration yields a usable market.
func ValidateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("configuration is missing")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DataDir required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.Level: unknown level %q", c.Log.Level)
	}
	params, err := c.MarketParams()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("market: %w", err)
	}
	if _, err := c.InterestModel(); err != nil {
		return err
	}
	return nil
}
