package config

// Log controls the structured logger of the daemon.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// Interest selects the borrow rate curve. Rates are yearly decimals such as
// "0.02" and are converted to per-height mantissas with BlocksPerYear.
type Interest struct {
	Model                 string `toml:"Model"`
	BaseRatePerYear       string `toml:"BaseRatePerYear"`
	MultiplierPerYear     string `toml:"MultiplierPerYear"`
	JumpMultiplierPerYear string `toml:"JumpMultiplierPerYear"`
	Kink                  string `toml:"Kink"`
	BlocksPerYear         uint64 `toml:"BlocksPerYear"`
}

// Emission is the halving schedule. Rates are in base units of the reward
// asset per height.
type Emission struct {
	InitialRate string `toml:"InitialRate"`
	MinRate     string `toml:"MinRate"`
	HalvePeriod uint64 `toml:"HalvePeriod"`
	StartHeight uint64 `toml:"StartHeight"`
}

// Weights are decimals that must add up to exactly one.
type Weights struct {
	Pool        string `toml:"Pool"`
	MinerLeague string `toml:"MinerLeague"`
	Operator    string `toml:"Operator"`
	Technical   string `toml:"Technical"`
	Supply      string `toml:"Supply"`
}

// Beneficiaries are bech32 addresses. Empty entries fall back to the module
// derived defaults.
type Beneficiaries struct {
	Pool          string `toml:"Pool"`
	MinerLeague   string `toml:"MinerLeague"`
	Operator      string `toml:"Operator"`
	Technical     string `toml:"Technical"`
	Undistributed string `toml:"Undistributed"`
}

type Assets struct {
	Underlying string `toml:"Underlying"`
	Collateral string `toml:"Collateral"`
	Reward     string `toml:"Reward"`
}

// Market captures the launch parameters of the lending market.
type Market struct {
	CollateralFactor    string        `toml:"CollateralFactor"`
	ReserveFactor       string        `toml:"ReserveFactor"`
	InitialExchangeRate string        `toml:"InitialExchangeRate"`
	MintAllowed         bool          `toml:"MintAllowed"`
	BorrowAllowed       bool          `toml:"BorrowAllowed"`
	Interest            Interest      `toml:"interest"`
	Emission            Emission      `toml:"emission"`
	Weights             Weights       `toml:"weights"`
	Beneficiaries       Beneficiaries `toml:"beneficiaries"`
	Assets              Assets        `toml:"assets"`
}

// Pauses are operator kill switches consulted before every operation.
type Pauses struct {
	Market bool `toml:"Market"`
}
