package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// bpsDenominator is the basis-point scale used for slippage math.
	bpsDenominator = 10_000
	// DefaultSwapDeadline bounds how long a submitted swap stays executable so
	// a delayed transaction cannot settle at a stale price.
	DefaultSwapDeadline = 5 * time.Minute
)

// Route tier names as carried in swap events and metric labels.
const (
	RouteDirect  = "direct"
	RouteBridged = "bridged"
)

// PairRegistry reports which trading pairs the exchange collaborator lists.
type PairRegistry interface {
	HasPair(ctx context.Context, a, b common.Address) (bool, error)
}

// Exchange executes and quotes exact-input swaps along a path.
type Exchange interface {
	// QuoteExactInput estimates the final-leg output for amountIn along path.
	QuoteExactInput(ctx context.Context, path Path, amountIn *big.Int) (*big.Int, error)
	// SwapExactInput performs the swap, refusing execution past the deadline,
	// and returns the per-leg output amounts.
	SwapExactInput(ctx context.Context, path Path, amountIn, minOut *big.Int, deadline time.Time) ([]*big.Int, error)
}

// RouterConfig wires the collaborators and policy inputs for route selection.
type RouterConfig struct {
	UnitOfAccount common.Address
	Bridge        common.Address
	Spender       common.Address
	Registry      PairRegistry
	Exchange      Exchange
	Tokens        TokenMover
	// SlippageBps is read live on every execution so operator updates take
	// effect without rebuilding the router.
	SlippageBps func() uint64
	Deadline    time.Duration
}

// Router selects a path from an input token to the unit-of-account asset and
// executes slippage-bounded swaps through the exchange collaborator. Routing
// is two-tier (direct, then one hop through the bridge asset); the bounded
// search keeps cost predictable.
type Router struct {
	unit     common.Address
	bridge   common.Address
	spender  common.Address
	registry PairRegistry
	exchange Exchange
	tokens   TokenMover
	slippage func() uint64
	deadline time.Duration
	clock    func() time.Time
}

// NewRouter validates the configuration and constructs a router.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("vault: pair registry required")
	}
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("vault: exchange required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("vault: token mover required")
	}
	if cfg.UnitOfAccount == (common.Address{}) {
		return nil, fmt.Errorf("vault: unit-of-account asset required")
	}
	if cfg.Bridge == (common.Address{}) {
		return nil, fmt.Errorf("vault: bridge asset required")
	}
	if cfg.Spender == (common.Address{}) {
		return nil, fmt.Errorf("vault: exchange spender address required")
	}
	if cfg.SlippageBps == nil {
		return nil, fmt.Errorf("vault: slippage source required")
	}
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = DefaultSwapDeadline
	}
	return &Router{
		unit:     cfg.UnitOfAccount,
		bridge:   cfg.Bridge,
		spender:  cfg.Spender,
		registry: cfg.Registry,
		exchange: cfg.Exchange,
		tokens:   cfg.Tokens,
		slippage: cfg.SlippageBps,
		deadline: deadline,
		clock:    time.Now,
	}, nil
}

// SetClock overrides the time source for deterministic tests.
func (r *Router) SetClock(clock func() time.Time) {
	if r == nil || clock == nil {
		return
	}
	r.clock = clock
}

// SelectPath prefers the direct pair and falls back to the bridged route.
// For a fixed registry state the result is deterministic.
func (r *Router) SelectPath(ctx context.Context, tokenIn common.Address) (Path, error) {
	if r == nil {
		return nil, fmt.Errorf("vault: router not initialised")
	}
	if tokenIn == (common.Address{}) {
		return nil, ErrInvalidAsset
	}
	direct, err := r.registry.HasPair(ctx, tokenIn, r.unit)
	if err != nil {
		return nil, fmt.Errorf("vault: pair lookup: %w", err)
	}
	if direct {
		return Path{tokenIn, r.unit}, nil
	}
	firstLeg, err := r.registry.HasPair(ctx, tokenIn, r.bridge)
	if err != nil {
		return nil, fmt.Errorf("vault: pair lookup: %w", err)
	}
	secondLeg, err := r.registry.HasPair(ctx, r.bridge, r.unit)
	if err != nil {
		return nil, fmt.Errorf("vault: pair lookup: %w", err)
	}
	if firstLeg && secondLeg {
		return Path{tokenIn, r.bridge, r.unit}, nil
	}
	return nil, ErrNoRoute
}

// HasRoute reports whether any supported route exists for the token.
func (r *Router) HasRoute(ctx context.Context, tokenIn common.Address) (bool, error) {
	_, err := r.SelectPath(ctx, tokenIn)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNoRoute) {
		return false, nil
	}
	return false, err
}

// Quote returns a read-only output estimate for previewing, or zero when no
// route exists.
func (r *Router) Quote(ctx context.Context, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	if r == nil {
		return nil, fmt.Errorf("vault: router not initialised")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	path, err := r.SelectPath(ctx, tokenIn)
	if err != nil {
		if errors.Is(err, ErrNoRoute) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	expected, err := r.exchange.QuoteExactInput(ctx, path, amountIn)
	if err != nil {
		return nil, fmt.Errorf("vault: quote: %w", err)
	}
	if expected == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(expected), nil
}

// MinOut applies the supplied slippage tolerance to a quoted output.
func MinOut(expected *big.Int, slippageBps uint64) *big.Int {
	if expected == nil || expected.Sign() <= 0 {
		return big.NewInt(0)
	}
	keep := new(big.Int).SetUint64(bpsDenominator - slippageBps)
	minOut := new(big.Int).Mul(expected, keep)
	return minOut.Quo(minOut, big.NewInt(bpsDenominator))
}

// Execute swaps amountIn of tokenIn held by the vault into the
// unit-of-account asset. The exchange is granted spending authority over
// exactly amountIn, the minimum acceptable output is derived from a live
// quote, and execution carries a short absolute deadline.
func (r *Router) Execute(ctx context.Context, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	if r == nil {
		return nil, fmt.Errorf("vault: router not initialised")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	path, err := r.SelectPath(ctx, tokenIn)
	if err != nil {
		return nil, err
	}
	expected, err := r.exchange.QuoteExactInput(ctx, path, amountIn)
	if err != nil {
		return nil, fmt.Errorf("vault: quote: %w", err)
	}
	if expected == nil || expected.Sign() <= 0 {
		return nil, ErrSwapFailed
	}
	slippage := r.slippage()
	if slippage > MaxSlippageBps {
		slippage = MaxSlippageBps
	}
	minOut := MinOut(expected, slippage)
	if err := r.tokens.Approve(ctx, tokenIn, r.spender, amountIn); err != nil {
		return nil, fmt.Errorf("vault: approve: %w", err)
	}
	deadline := r.clock().Add(r.deadline)
	amounts, err := r.exchange.SwapExactInput(ctx, path, amountIn, minOut, deadline)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSwapFailed, err)
	}
	if len(amounts) == 0 {
		return nil, ErrSwapFailed
	}
	amountOut := amounts[len(amounts)-1]
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrSwapFailed
	}
	return new(big.Int).Set(amountOut), nil
}
