package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
listen = ":9099"
database = "/tmp/vaultd-test.sqlite"
environment = "dev"

[admin]
bearer_token = "secret"

[vault]
owner = "0x1111111111111111111111111111111111111111"
holding = "0x2222222222222222222222222222222222222222"
unit_of_account = "0x3333333333333333333333333333333333333333"
limit_per_tx = "5000000000"
bank_cap = "100000000000"

[oracle]
feed = "0x4444444444444444444444444444444444444444"
staleness_window = "30m"

[swap]
bridge = "0x5555555555555555555555555555555555555555"
spender = "0x6666666666666666666666666666666666666666"
slippage_bps = 300
deadline = "2m"

[[swap.pairs]]
token_in = "0x7777777777777777777777777777777777777777"
token_out = "0x3333333333333333333333333333333333333333"

[swap.rates]
"0x7777777777777777777777777777777777777777" = "900000000"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaultd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesAndValidates(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9099" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.Oracle.StalenessWindow.Duration != 30*time.Minute {
		t.Fatalf("unexpected staleness window %v", cfg.Oracle.StalenessWindow.Duration)
	}
	if cfg.Swap.Deadline.Duration != 2*time.Minute {
		t.Fatalf("unexpected deadline %v", cfg.Swap.Deadline.Duration)
	}
	if cfg.LimitPerTx().String() != "5000000000" {
		t.Fatalf("unexpected per-tx limit %s", cfg.LimitPerTx())
	}
	if cfg.BankCap().String() != "100000000000" {
		t.Fatalf("unexpected bank cap %s", cfg.BankCap())
	}
	if cfg.OwnerAddress().Hex() != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("unexpected owner %s", cfg.OwnerAddress().Hex())
	}
	if len(cfg.Swap.Pairs) != 1 {
		t.Fatalf("expected one pair, got %d", len(cfg.Swap.Pairs))
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	minimal := `
[admin]
bearer_token = "secret"

[vault]
owner = "0x1111111111111111111111111111111111111111"
holding = "0x2222222222222222222222222222222222222222"
unit_of_account = "0x3333333333333333333333333333333333333333"
limit_per_tx = "1000000"
bank_cap = "2000000"

[oracle]
feed = "0x4444444444444444444444444444444444444444"

[swap]
bridge = "0x5555555555555555555555555555555555555555"
spender = "0x6666666666666666666666666666666666666666"
`
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":7085" {
		t.Fatalf("default listen not applied: %q", cfg.ListenAddress)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("default log level not applied: %q", cfg.LogLevel)
	}
	if cfg.Oracle.StalenessWindow.Duration != time.Hour {
		t.Fatalf("default staleness window not applied: %v", cfg.Oracle.StalenessWindow.Duration)
	}
	if cfg.Swap.SlippageBps != 50 {
		t.Fatalf("default slippage not applied: %d", cfg.Swap.SlippageBps)
	}
	if cfg.Swap.Deadline.Duration != 5*time.Minute {
		t.Fatalf("default deadline not applied: %v", cfg.Swap.Deadline.Duration)
	}
}

func TestLoadRejectsMissingBearerToken(t *testing.T) {
	body := strings.Replace(sampleConfig, `bearer_token = "secret"`, `bearer_token = ""`, 1)
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error for missing bearer token")
	}
}

func TestLoadRejectsMalformedAddress(t *testing.T) {
	body := strings.Replace(sampleConfig, "0x1111111111111111111111111111111111111111", "not-an-address", 1)
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error for malformed owner address")
	}
}

func TestLoadRejectsNonPositiveAmounts(t *testing.T) {
	body := strings.Replace(sampleConfig, `limit_per_tx = "5000000000"`, `limit_per_tx = "0"`, 1)
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error for zero per-tx limit")
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := d.UnmarshalText([]byte("")); err != nil {
		t.Fatalf("empty duration should be accepted: %v", err)
	}
}
