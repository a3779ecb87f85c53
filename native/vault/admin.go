package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MaxSlippageBps is the upper bound on the owner-configurable tolerance (10%).
const MaxSlippageBps uint64 = 1000

// Authority is a composed owner capability. Components needing administrative
// gating hold an Authority and call Require instead of inheriting access
// control.
type Authority struct {
	owner common.Address
}

// NewAuthority constructs the capability for a non-zero owner identity.
func NewAuthority(owner common.Address) (*Authority, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("vault: owner address required")
	}
	return &Authority{owner: owner}, nil
}

// Owner returns the holder of the capability.
func (a *Authority) Owner() common.Address {
	if a == nil {
		return common.Address{}
	}
	return a.owner
}

// Require rejects callers other than the owner.
func (a *Authority) Require(caller common.Address) error {
	if a == nil {
		return ErrUnauthorized
	}
	if caller != a.owner {
		return ErrUnauthorized
	}
	return nil
}

// AdminParams holds the two owner-mutable parameters: the price feed
// reference and the slippage tolerance. The per-operation limit and bank cap
// are fixed for the lifetime of the instance and live in Caps.
type AdminParams struct {
	mu          sync.RWMutex
	auth        *Authority
	oracle      *OracleAdapter
	slippageBps uint64
	emitter     Emitter
}

// NewAdminParams constructs the admin surface. The initial tolerance must
// already satisfy the bound.
func NewAdminParams(auth *Authority, oracle *OracleAdapter, slippageBps uint64, emitter Emitter) (*AdminParams, error) {
	if auth == nil {
		return nil, fmt.Errorf("vault: authority required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("vault: oracle adapter required")
	}
	if slippageBps > MaxSlippageBps {
		return nil, &InvalidSlippageError{Bps: slippageBps}
	}
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	return &AdminParams{auth: auth, oracle: oracle, slippageBps: slippageBps, emitter: emitter}, nil
}

// SlippageTolerance returns the current tolerance in basis points.
func (p *AdminParams) SlippageTolerance() uint64 {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.slippageBps
}

// SetSlippageTolerance updates the tolerance. Owner-only; values above
// MaxSlippageBps are rejected and leave the prior value unchanged.
func (p *AdminParams) SetSlippageTolerance(ctx context.Context, caller common.Address, bps uint64) error {
	if p == nil {
		return fmt.Errorf("vault: admin params not initialised")
	}
	if err := p.auth.Require(caller); err != nil {
		return err
	}
	if bps > MaxSlippageBps {
		return &InvalidSlippageError{Bps: bps}
	}
	p.mu.Lock()
	old := p.slippageBps
	p.slippageBps = bps
	p.mu.Unlock()
	p.emitter.Emit(ctx, SlippageUpdated{Owner: caller, OldBps: old, NewBps: bps})
	return nil
}

// SetPriceFeed rotates the oracle reference. Owner-only; nil references are
// rejected.
func (p *AdminParams) SetPriceFeed(ctx context.Context, caller common.Address, feed PriceFeed) error {
	if p == nil {
		return fmt.Errorf("vault: admin params not initialised")
	}
	if err := p.auth.Require(caller); err != nil {
		return err
	}
	if err := p.oracle.SetFeed(feed); err != nil {
		return err
	}
	p.emitter.Emit(ctx, PriceFeedUpdated{Owner: caller})
	return nil
}
