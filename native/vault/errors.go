package vault

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	// ErrInvalidAmount indicates a zero or negative amount was supplied.
	ErrInvalidAmount = errors.New("vault: amount must be positive")
	// ErrInvalidAsset indicates a zero asset address was supplied.
	ErrInvalidAsset = errors.New("vault: asset address required")
	// ErrInvalidDepositor indicates a zero depositor address was supplied.
	ErrInvalidDepositor = errors.New("vault: depositor address required")
	// ErrInvalidPrice indicates the oracle reported a non-positive price.
	ErrInvalidPrice = errors.New("vault: oracle price must be positive")
	// ErrOracleUnavailable indicates the feed could not produce a complete round.
	ErrOracleUnavailable = errors.New("vault: oracle unavailable")
	// ErrStalePrice indicates the oracle answer is too old to trust.
	ErrStalePrice = errors.New("vault: oracle price stale")
	// ErrNoRoute indicates neither a direct nor a bridged pair exists for the asset.
	ErrNoRoute = errors.New("vault: no swap route available")
	// ErrSwapFailed indicates the exchange returned a zero or unusable result.
	ErrSwapFailed = errors.New("vault: swap execution failed")
	// ErrReentrancy indicates a state-mutating entry point was re-entered
	// while an operation was still in flight.
	ErrReentrancy = errors.New("vault: reentrant call rejected")
	// ErrUnauthorized indicates the caller does not hold the owner capability.
	ErrUnauthorized = errors.New("vault: caller is not the owner")
	// ErrInvalidReference indicates a nil price feed reference was supplied.
	ErrInvalidReference = errors.New("vault: price feed reference required")
)

// StalePriceError carries the observed age alongside the configured window so
// operators can see how far out of date the feed is.
type StalePriceError struct {
	Elapsed time.Duration
	MaxAge  time.Duration
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("vault: oracle price stale: age %s exceeds window %s", e.Elapsed, e.MaxAge)
}

// Unwrap allows errors.Is(err, ErrStalePrice) matching.
func (e *StalePriceError) Unwrap() error { return ErrStalePrice }

// LimitExceededError reports a normalized amount above the per-operation ceiling.
type LimitExceededError struct {
	Requested *big.Int
	Limit     *big.Int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("vault: amount %s exceeds per-operation limit %s", e.Requested, e.Limit)
}

// BankCapError reports a projected total above the global capacity ceiling.
type BankCapError struct {
	Projected *big.Int
	Cap       *big.Int
}

func (e *BankCapError) Error() string {
	return fmt.Sprintf("vault: projected bank value %s exceeds cap %s", e.Projected, e.Cap)
}

// InsufficientBalanceError reports a debit larger than the held balance.
type InsufficientBalanceError struct {
	Available *big.Int
	Requested *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("vault: balance %s insufficient for withdrawal of %s", e.Available, e.Requested)
}

// InvalidSlippageError reports a tolerance outside the [0, MaxSlippageBps] range.
type InvalidSlippageError struct {
	Bps uint64
}

func (e *InvalidSlippageError) Error() string {
	return fmt.Sprintf("vault: slippage tolerance %d bps exceeds maximum %d", e.Bps, MaxSlippageBps)
}
