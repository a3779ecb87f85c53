package vault

import (
	"math/big"
	"testing"
)

func TestToUnitOfAccountReferenceScenario(t *testing.T) {
	// 1 native unit at 2000 units-per-native, 8-digit price precision,
	// 18-digit asset precision, 6-digit internal unit.
	amount, _ := new(big.Int).SetString("1000000000000000000", 10)
	price := big.NewInt(2000_00000000)
	got := ToUnitOfAccount(amount, NativeDecimals, price, 8)
	want := big.NewInt(2000_000000)
	if got.Cmp(want) != 0 {
		t.Fatalf("normalized = %s, want %s", got, want)
	}
}

func TestToUnitOfAccountTruncatesTowardZero(t *testing.T) {
	// 1 wei at the same price produces a sub-unit value that floors to zero.
	got := ToUnitOfAccount(big.NewInt(1), NativeDecimals, big.NewInt(2000_00000000), 8)
	if got.Sign() != 0 {
		t.Fatalf("expected zero, got %s", got)
	}
}

func TestToUnitOfAccountLowPrecisionScalesUp(t *testing.T) {
	// 2-digit asset with a 2-digit price lands below the unit precision and
	// must be scaled up instead of divided.
	got := ToUnitOfAccount(big.NewInt(500), 2, big.NewInt(300), 2)
	// 5.00 * 3.00 = 15.00 -> 15_000000
	want := big.NewInt(15_000000)
	if got.Cmp(want) != 0 {
		t.Fatalf("normalized = %s, want %s", got, want)
	}
}

func TestToUnitOfAccountNilInputs(t *testing.T) {
	if got := ToUnitOfAccount(nil, 18, big.NewInt(1), 8); got.Sign() != 0 {
		t.Fatalf("nil amount: got %s", got)
	}
	if got := ToUnitOfAccount(big.NewInt(1), 18, nil, 8); got.Sign() != 0 {
		t.Fatalf("nil price: got %s", got)
	}
}
