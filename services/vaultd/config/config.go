package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Duration wraps time.Duration to support TOML unmarshalling from human
// readable strings such as "90s" or "1h".
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for vaultd.
type Config struct {
	ListenAddress string       `toml:"listen"`
	DatabasePath  string       `toml:"database"`
	Environment   string       `toml:"environment"`
	LogLevel      string       `toml:"log_level"`
	Admin         AdminConfig  `toml:"admin"`
	Vault         VaultConfig  `toml:"vault"`
	Oracle        OracleConfig `toml:"oracle"`
	Swap          SwapConfig   `toml:"swap"`
}

// AdminConfig carries credentials for the mutating endpoints.
type AdminConfig struct {
	BearerToken string `toml:"bearer_token"`
}

// VaultConfig describes the accounting engine parameters. Addresses are hex
// encoded, amounts are decimal strings in the internal accounting unit.
type VaultConfig struct {
	Owner         string `toml:"owner"`
	Holding       string `toml:"holding"`
	UnitOfAccount string `toml:"unit_of_account"`
	LimitPerTx    string `toml:"limit_per_tx"`
	BankCap       string `toml:"bank_cap"`
}

// OracleConfig points at the reference price feed.
type OracleConfig struct {
	Endpoint        string   `toml:"endpoint"`
	Feed            string   `toml:"feed"`
	StalenessWindow Duration `toml:"staleness_window"`
}

// SwapConfig tunes entry-swap routing. Pairs list the tradable token pairs and
// Rates provide the simulated execution rates for the paper exchange backend.
type SwapConfig struct {
	Bridge      string            `toml:"bridge"`
	Spender     string            `toml:"spender"`
	SlippageBps uint64            `toml:"slippage_bps"`
	Deadline    Duration          `toml:"deadline"`
	Pairs       []Pair            `toml:"pairs"`
	Rates       map[string]string `toml:"rates"`
}

// Pair identifies a tradable token pair by hex address.
type Pair struct {
	TokenIn  string `toml:"token_in"`
	TokenOut string `toml:"token_out"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7085"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/vaultd.sqlite"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Oracle.StalenessWindow.Duration == 0 {
		cfg.Oracle.StalenessWindow.Duration = time.Hour
	}
	if cfg.Swap.SlippageBps == 0 {
		cfg.Swap.SlippageBps = 50
	}
	if cfg.Swap.Deadline.Duration == 0 {
		cfg.Swap.Deadline.Duration = 5 * time.Minute
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Admin.BearerToken) == "" {
		return fmt.Errorf("admin bearer_token must be configured")
	}
	if _, err := parseAddress("vault.owner", cfg.Vault.Owner); err != nil {
		return err
	}
	if _, err := parseAddress("vault.holding", cfg.Vault.Holding); err != nil {
		return err
	}
	if _, err := parseAddress("vault.unit_of_account", cfg.Vault.UnitOfAccount); err != nil {
		return err
	}
	if _, err := parseAmount("vault.limit_per_tx", cfg.Vault.LimitPerTx); err != nil {
		return err
	}
	if _, err := parseAmount("vault.bank_cap", cfg.Vault.BankCap); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Oracle.Feed) == "" {
		return fmt.Errorf("oracle.feed must be configured")
	}
	if _, err := parseAddress("swap.bridge", cfg.Swap.Bridge); err != nil {
		return err
	}
	if _, err := parseAddress("swap.spender", cfg.Swap.Spender); err != nil {
		return err
	}
	for i, pair := range cfg.Swap.Pairs {
		if _, err := parseAddress(fmt.Sprintf("swap.pairs[%d].token_in", i), pair.TokenIn); err != nil {
			return err
		}
		if _, err := parseAddress(fmt.Sprintf("swap.pairs[%d].token_out", i), pair.TokenOut); err != nil {
			return err
		}
	}
	for token, rate := range cfg.Swap.Rates {
		if !common.IsHexAddress(strings.TrimSpace(token)) {
			return fmt.Errorf("swap.rates key %q is not a hex address", token)
		}
		if _, err := parseAmount(fmt.Sprintf("swap.rates[%s]", token), rate); err != nil {
			return err
		}
	}
	return nil
}

// OwnerAddress returns the parsed vault owner.
func (c Config) OwnerAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.Vault.Owner))
}

// HoldingAddress returns the vault's custody address.
func (c Config) HoldingAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.Vault.Holding))
}

// UnitOfAccountAddress returns the unit-of-account token address.
func (c Config) UnitOfAccountAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.Vault.UnitOfAccount))
}

// BridgeAddress returns the routing bridge asset.
func (c Config) BridgeAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.Swap.Bridge))
}

// SpenderAddress returns the exchange spender granted swap allowances.
func (c Config) SpenderAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.Swap.Spender))
}

// FeedAddress returns the reference price feed contract address.
func (c Config) FeedAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.Oracle.Feed))
}

// LimitPerTx returns the per-transaction ceiling in accounting units. Load
// validates the string so failures here indicate a programming error.
func (c Config) LimitPerTx() *big.Int {
	amount, _ := parseAmount("vault.limit_per_tx", c.Vault.LimitPerTx)
	return amount
}

// BankCap returns the global deposit ceiling in accounting units.
func (c Config) BankCap() *big.Int {
	amount, _ := parseAmount("vault.bank_cap", c.Vault.BankCap)
	return amount
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.Address{}, fmt.Errorf("%s must be configured", field)
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s must be configured", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%s must be positive", field)
	}
	return amount, nil
}
