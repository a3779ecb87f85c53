package vault

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// UnitDecimals is the fixed-point precision of the internal accounting
	// unit. Every ledger balance is denominated in this precision.
	UnitDecimals uint8 = 6
	// NativeDecimals is the precision of the native settlement asset.
	NativeDecimals uint8 = 18
)

// AssetClass identifies the ledger bucket a balance belongs to. Arbitrary
// deposited tokens are swapped on entry and collapse into the unit-of-account
// class.
type AssetClass string

const (
	// AssetClassNative holds normalized value contributed as the native
	// settlement asset.
	AssetClassNative AssetClass = "native"
	// AssetClassUnitOfAccount holds value contributed directly in the
	// unit-of-account asset or received from an entry swap.
	AssetClassUnitOfAccount AssetClass = "unit-of-account"
)

// AssetClasses lists the ledger buckets in canonical order.
func AssetClasses() []AssetClass {
	return []AssetClass{AssetClassNative, AssetClassUnitOfAccount}
}

// Valid reports whether the class is one of the two supported buckets.
func (c AssetClass) Valid() bool {
	switch c {
	case AssetClassNative, AssetClassUnitOfAccount:
		return true
	}
	return false
}

// ParseAssetClass normalises a textual asset class identifier.
func ParseAssetClass(raw string) (AssetClass, bool) {
	class := AssetClass(strings.ToLower(strings.TrimSpace(raw)))
	if !class.Valid() {
		return "", false
	}
	return class, true
}

// RoundData mirrors the payload returned by the external price feed
// collaborator for its most recent round.
type RoundData struct {
	RoundID         uint64
	Answer          *big.Int
	UpdatedAt       time.Time
	AnsweredInRound uint64
}

// PriceReading is a validated oracle observation handed to conversion and
// valuation logic. Readings are transient and never cached across operations.
type PriceReading struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers cannot mutate shared big integers.
func (r PriceReading) Clone() PriceReading {
	clone := PriceReading{Decimals: r.Decimals, UpdatedAt: r.UpdatedAt}
	if r.Price != nil {
		clone.Price = new(big.Int).Set(r.Price)
	}
	return clone
}

// Path is the ordered asset sequence a swap traverses. Valid paths carry two
// entries (direct pair) or three (one hop through the bridge asset).
type Path []common.Address

// Clone returns a defensive copy of the path.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return append(Path{}, p...)
}

// Direct reports whether the path is a single-pair route.
func (p Path) Direct() bool { return len(p) == 2 }

// Kind names the route tier the path traverses.
func (p Path) Kind() string {
	switch len(p) {
	case 2:
		return RouteDirect
	case 3:
		return RouteBridged
	}
	return "unknown"
}
