package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir     string `toml:"DataDir"`
	AuditLogDSN string `toml:"AuditLogDSN"`
	NetworkName string `toml:"NetworkName"`
	Log         Log    `toml:"log"`
	Market      Market `toml:"market"`
	Pauses      Pauses `toml:"pauses"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by the defaults, which are written back so operators have a
// template to edit.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.normalize()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the launch configuration.
func Default() *Config {
	return &Config{
		DataDir:     "./defil-data",
		NetworkName: "defil-local",
		Log:         Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5},
		Market: Market{
			CollateralFactor:    "1",
			ReserveFactor:       "0",
			InitialExchangeRate: "1",
			MintAllowed:         true,
			BorrowAllowed:       true,
			Interest: Interest{
				Model:             ModelWhitePaper,
				BaseRatePerYear:   "0.02",
				MultiplierPerYear: "0.1",
				BlocksPerYear:     2_102_400,
			},
			Emission: Emission{
				InitialRate: "86805721000000000000",
				MinRate:     "170000000000000",
				HalvePeriod: 576_000,
			},
			Weights: Weights{
				Pool:        "0.25",
				MinerLeague: "0.1",
				Operator:    "0.03",
				Technical:   "0.02",
				Supply:      "0.6",
			},
			Assets: Assets{Underlying: "EFIL", Collateral: "MFIL", Reward: "DFL"},
		},
	}
}

func (c *Config) normalize() {
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.AuditLogDSN = strings.TrimSpace(c.AuditLogDSN)
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "defil-local"
	}
	c.Market.Interest.Model = strings.ToLower(strings.TrimSpace(c.Market.Interest.Model))
	if c.Market.Interest.Model == "" {
		c.Market.Interest.Model = ModelWhitePaper
	}
	a := &c.Market.Assets
	a.Underlying = strings.ToUpper(strings.TrimSpace(a.Underlying))
	a.Collateral = strings.ToUpper(strings.TrimSpace(a.Collateral))
	a.Reward = strings.ToUpper(strings.TrimSpace(a.Reward))
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
