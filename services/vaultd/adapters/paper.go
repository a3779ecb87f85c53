package adapters

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Laura-bmk/KipuBankV3/native/vault"
)

// rateScale is the fixed-point denominator for paper exchange rates: a rate of
// 1_000000 swaps one input base unit into one output base unit.
var rateScale = big.NewInt(1_000000)

// StaticRegistry is a pair registry backed by a configured list. The paper
// backend lists pairs in both directions.
type StaticRegistry struct {
	pairs map[[2]common.Address]struct{}
}

// NewStaticRegistry builds a registry from (in, out) address pairs.
func NewStaticRegistry(pairs [][2]common.Address) *StaticRegistry {
	registry := &StaticRegistry{pairs: make(map[[2]common.Address]struct{}, len(pairs)*2)}
	for _, pair := range pairs {
		registry.pairs[pair] = struct{}{}
		registry.pairs[[2]common.Address{pair[1], pair[0]}] = struct{}{}
	}
	return registry
}

// HasPair reports whether the pair is listed.
func (r *StaticRegistry) HasPair(_ context.Context, a, b common.Address) (bool, error) {
	if r == nil {
		return false, nil
	}
	_, ok := r.pairs[[2]common.Address{a, b}]
	return ok, nil
}

// RateExchange simulates swap execution against configured fixed rates. Rates
// are fixed-point multipliers scaled by 10^6 keyed by the input token of the
// path; multi-hop paths settle at the entry token's rate.
type RateExchange struct {
	mu    sync.Mutex
	rates map[common.Address]*big.Int
	clock func() time.Time
}

// NewRateExchange builds a paper exchange from a token rate table.
func NewRateExchange(rates map[common.Address]*big.Int) *RateExchange {
	copied := make(map[common.Address]*big.Int, len(rates))
	for token, rate := range rates {
		if rate == nil || rate.Sign() <= 0 {
			continue
		}
		copied[token] = new(big.Int).Set(rate)
	}
	return &RateExchange{rates: copied, clock: time.Now}
}

// SetClock overrides the time source for deterministic tests.
func (e *RateExchange) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.mu.Lock()
	e.clock = clock
	e.mu.Unlock()
}

// QuoteExactInput estimates the output for swapping amountIn along the path.
func (e *RateExchange) QuoteExactInput(_ context.Context, path vault.Path, amountIn *big.Int) (*big.Int, error) {
	if e == nil {
		return nil, fmt.Errorf("adapters: exchange not configured")
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("adapters: path too short")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("adapters: amount must be positive")
	}
	e.mu.Lock()
	rate, ok := e.rates[path[0]]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("adapters: no rate for %s", path[0].Hex())
	}
	out := new(big.Int).Mul(amountIn, rate)
	return out.Quo(out, rateScale), nil
}

// SwapExactInput settles the swap at the quoted rate, honoring the deadline
// and the minimum output bound the caller computed.
func (e *RateExchange) SwapExactInput(ctx context.Context, path vault.Path, amountIn, minOut *big.Int, deadline time.Time) ([]*big.Int, error) {
	out, err := e.QuoteExactInput(ctx, path, amountIn)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	now := e.clock()
	e.mu.Unlock()
	if !deadline.IsZero() && now.After(deadline) {
		return nil, fmt.Errorf("adapters: swap deadline exceeded")
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("adapters: output %s below minimum %s", out, minOut)
	}
	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 1; i < len(path)-1; i++ {
		amounts[i] = new(big.Int).Set(amountIn)
	}
	amounts[len(path)-1] = out
	return amounts, nil
}

// movement is a single recorded custody operation.
type movement struct {
	Kind   string
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// PaperMover simulates token custody by journaling every movement instead of
// touching a chain. It backs both the token and native mover contracts.
type PaperMover struct {
	mu      sync.Mutex
	journal []movement
}

// NewPaperMover returns an empty custody simulator.
func NewPaperMover() *PaperMover { return &PaperMover{} }

// TransferFrom journals a pull from a depositor's account.
func (m *PaperMover) TransferFrom(_ context.Context, token, from, to common.Address, amount *big.Int) error {
	return m.record("transfer_from", token, from, to, amount)
}

// Transfer journals an outbound token payment.
func (m *PaperMover) Transfer(_ context.Context, token, to common.Address, amount *big.Int) error {
	return m.record("transfer", token, common.Address{}, to, amount)
}

// Approve journals an allowance grant.
func (m *PaperMover) Approve(_ context.Context, token, spender common.Address, amount *big.Int) error {
	return m.record("approve", token, common.Address{}, spender, amount)
}

// Send journals an outbound native payment.
func (m *PaperMover) Send(_ context.Context, to common.Address, amount *big.Int) error {
	return m.record("send", common.Address{}, common.Address{}, to, amount)
}

// MovementCount returns how many custody operations were journaled.
func (m *PaperMover) MovementCount() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.journal)
}

func (m *PaperMover) record(kind string, token, from, to common.Address, amount *big.Int) error {
	if m == nil {
		return fmt.Errorf("adapters: mover not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("adapters: movement amount must be positive")
	}
	m.mu.Lock()
	m.journal = append(m.journal, movement{
		Kind:   kind,
		Token:  token,
		From:   from,
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	m.mu.Unlock()
	return nil
}
