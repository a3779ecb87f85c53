package vault

import (
	"context"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Event represents a structured state change recorded after every successful
// mutation, exactly one per transition.
type Event interface {
	EventType() string
	Attributes() map[string]string
}

// Emitter broadcasts events to downstream subscribers (audit log, metrics).
// The context is the one of the operation that produced the event so sinks
// performing I/O observe the same cancellation as the operation itself.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEmitter satisfies Emitter while discarding all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(context.Context, Event) {}

const (
	// TypeDepositRecorded is emitted when a deposit credits a ledger balance.
	TypeDepositRecorded = "vault.deposit"
	// TypeWithdrawalRecorded is emitted when a withdrawal debits a ledger balance.
	TypeWithdrawalRecorded = "vault.withdrawal"
	// TypeSwapExecuted is emitted when an entry swap converts a deposited token.
	TypeSwapExecuted = "vault.swap"
	// TypePriceFeedUpdated is emitted when the owner rotates the feed reference.
	TypePriceFeedUpdated = "vault.feed_updated"
	// TypeSlippageUpdated is emitted when the owner adjusts the tolerance.
	TypeSlippageUpdated = "vault.slippage_updated"
)

// DepositRecorded captures a credited deposit alongside its raw input.
type DepositRecorded struct {
	Depositor  common.Address
	Class      AssetClass
	Asset      common.Address
	RawAmount  *big.Int
	Normalized *big.Int
}

func (DepositRecorded) EventType() string { return TypeDepositRecorded }

func (e DepositRecorded) Attributes() map[string]string {
	return map[string]string{
		"depositor":  e.Depositor.Hex(),
		"class":      string(e.Class),
		"asset":      e.Asset.Hex(),
		"rawAmount":  amountString(e.RawAmount),
		"normalized": amountString(e.Normalized),
	}
}

// WithdrawalRecorded captures a debited withdrawal.
type WithdrawalRecorded struct {
	Depositor  common.Address
	Class      AssetClass
	RawAmount  *big.Int
	Normalized *big.Int
}

func (WithdrawalRecorded) EventType() string { return TypeWithdrawalRecorded }

func (e WithdrawalRecorded) Attributes() map[string]string {
	return map[string]string{
		"depositor":  e.Depositor.Hex(),
		"class":      string(e.Class),
		"rawAmount":  amountString(e.RawAmount),
		"normalized": amountString(e.Normalized),
	}
}

// SwapExecuted captures an entry swap from an arbitrary token into the
// unit-of-account asset. Route names the tier that served the swap, either
// RouteDirect or RouteBridged.
type SwapExecuted struct {
	Depositor common.Address
	TokenIn   common.Address
	TokenOut  common.Address
	Route     string
	AmountIn  *big.Int
	AmountOut *big.Int
}

func (SwapExecuted) EventType() string { return TypeSwapExecuted }

func (e SwapExecuted) Attributes() map[string]string {
	return map[string]string{
		"depositor": e.Depositor.Hex(),
		"tokenIn":   e.TokenIn.Hex(),
		"tokenOut":  e.TokenOut.Hex(),
		"route":     e.Route,
		"amountIn":  amountString(e.AmountIn),
		"amountOut": amountString(e.AmountOut),
	}
}

// PriceFeedUpdated records an owner rotation of the oracle reference.
type PriceFeedUpdated struct {
	Owner common.Address
}

func (PriceFeedUpdated) EventType() string { return TypePriceFeedUpdated }

func (e PriceFeedUpdated) Attributes() map[string]string {
	return map[string]string{"owner": e.Owner.Hex()}
}

// SlippageUpdated records an owner change of the tolerance, old and new.
type SlippageUpdated struct {
	Owner  common.Address
	OldBps uint64
	NewBps uint64
}

func (SlippageUpdated) EventType() string { return TypeSlippageUpdated }

func (e SlippageUpdated) Attributes() map[string]string {
	return map[string]string{
		"owner":  e.Owner.Hex(),
		"oldBps": strconv.FormatUint(e.OldBps, 10),
		"newBps": strconv.FormatUint(e.NewBps, 10),
	}
}

func amountString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
