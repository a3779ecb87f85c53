package vault

import (
	"errors"
	"math/big"
	"testing"
)

func TestCapsTxLimit(t *testing.T) {
	caps, err := NewCaps(big.NewInt(1_000_000000), big.NewInt(10_000_000000))
	if err != nil {
		t.Fatalf("new caps: %v", err)
	}
	if err := caps.CheckTxLimit(big.NewInt(1_000_000000)); err != nil {
		t.Fatalf("at-limit amount rejected: %v", err)
	}
	err = caps.CheckTxLimit(big.NewInt(1_000_000001))
	var limitErr *LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitExceededError, got %v", err)
	}
	if limitErr.Limit.Cmp(big.NewInt(1_000_000000)) != 0 {
		t.Fatalf("unexpected limit %s", limitErr.Limit)
	}
}

func TestCapsBankCapProjection(t *testing.T) {
	caps, err := NewCaps(big.NewInt(5_000_000000), big.NewInt(10_000_000000))
	if err != nil {
		t.Fatalf("new caps: %v", err)
	}
	if err := caps.CheckBankCap(big.NewInt(6_000_000000), big.NewInt(4_000_000000)); err != nil {
		t.Fatalf("at-cap projection rejected: %v", err)
	}
	err = caps.CheckBankCap(big.NewInt(6_000_000000), big.NewInt(4_000_000001))
	var capErr *BankCapError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected BankCapError, got %v", err)
	}
	if capErr.Projected.Cmp(big.NewInt(10_000_000001)) != 0 {
		t.Fatalf("unexpected projection %s", capErr.Projected)
	}
}

func TestCapsConstructionValidation(t *testing.T) {
	if _, err := NewCaps(nil, big.NewInt(1)); err == nil {
		t.Fatalf("expected error for nil limit")
	}
	if _, err := NewCaps(big.NewInt(1), big.NewInt(0)); err == nil {
		t.Fatalf("expected error for zero cap")
	}
}

func TestCapsCopiesAreDefensive(t *testing.T) {
	limit := big.NewInt(100)
	caps, err := NewCaps(limit, big.NewInt(1000))
	if err != nil {
		t.Fatalf("new caps: %v", err)
	}
	limit.SetInt64(1)
	if caps.LimitPerTx().Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("limit mutated through caller pointer")
	}
	caps.BankCap().SetInt64(1)
	if caps.BankCap().Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("cap mutated through returned pointer")
	}
}
