package vault

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenMover abstracts the asset-transfer collaborator for token balances.
// Implementations move asset units between holders and report failure.
type TokenMover interface {
	TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) error
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error
}

// NativeMover sends native settlement asset out of the vault.
type NativeMover interface {
	Send(ctx context.Context, to common.Address, amount *big.Int) error
}

// BankConfig carries everything a bank needs at construction. The limits are
// immutable afterwards; the feed reference and slippage tolerance stay
// owner-mutable through the admin surface.
type BankConfig struct {
	Owner           common.Address
	Vault           common.Address
	UnitOfAccount   common.Address
	Bridge          common.Address
	ExchangeSpender common.Address

	LimitPerTx  *big.Int
	BankCap     *big.Int
	SlippageBps uint64

	StalenessWindow time.Duration
	SwapDeadline    time.Duration

	Feed     PriceFeed
	Registry PairRegistry
	Exchange Exchange
	Tokens   TokenMover
	Native   NativeMover
	Store    Storage
	Emitter  Emitter
}

// Bank is the accounting-and-conversion engine. Every contribution is
// normalized into the internal accounting unit before crediting the ledger,
// and every balance mutation passes the per-operation and bank-cap gates.
type Bank struct {
	guard   Guard
	ledger  *Ledger
	caps    *Caps
	oracle  *OracleAdapter
	router  *Router
	params  *AdminParams
	tokens  TokenMover
	native  NativeMover
	emitter Emitter
	unit    common.Address
	self    common.Address
}

// NewBank wires the engine from its collaborators and fixed limits.
func NewBank(cfg BankConfig) (*Bank, error) {
	if cfg.Vault == (common.Address{}) {
		return nil, fmt.Errorf("vault: vault holding address required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("vault: token mover required")
	}
	if cfg.Native == nil {
		return nil, fmt.Errorf("vault: native mover required")
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	auth, err := NewAuthority(cfg.Owner)
	if err != nil {
		return nil, err
	}
	oracle, err := NewOracleAdapter(cfg.Feed, cfg.StalenessWindow)
	if err != nil {
		return nil, err
	}
	params, err := NewAdminParams(auth, oracle, cfg.SlippageBps, emitter)
	if err != nil {
		return nil, err
	}
	caps, err := NewCaps(cfg.LimitPerTx, cfg.BankCap)
	if err != nil {
		return nil, err
	}
	ledger, err := NewLedger(cfg.Store)
	if err != nil {
		return nil, err
	}
	router, err := NewRouter(RouterConfig{
		UnitOfAccount: cfg.UnitOfAccount,
		Bridge:        cfg.Bridge,
		Spender:       cfg.ExchangeSpender,
		Registry:      cfg.Registry,
		Exchange:      cfg.Exchange,
		Tokens:        cfg.Tokens,
		SlippageBps:   params.SlippageTolerance,
		Deadline:      cfg.SwapDeadline,
	})
	if err != nil {
		return nil, err
	}
	return &Bank{
		ledger:  ledger,
		caps:    caps,
		oracle:  oracle,
		router:  router,
		params:  params,
		tokens:  cfg.Tokens,
		native:  cfg.Native,
		emitter: emitter,
		unit:    cfg.UnitOfAccount,
		self:    cfg.Vault,
	}, nil
}

// Oracle exposes the adapter, primarily for deterministic test clocks.
func (b *Bank) Oracle() *OracleAdapter { return b.oracle }

// Router exposes the swap router, primarily for deterministic test clocks.
func (b *Bank) Router() *Router { return b.router }

// Owner returns the administrative owner identity.
func (b *Bank) Owner() common.Address { return b.params.auth.Owner() }

// LimitPerTx returns the immutable per-operation ceiling.
func (b *Bank) LimitPerTx() *big.Int { return b.caps.LimitPerTx() }

// BankCap returns the immutable global capacity ceiling.
func (b *Bank) BankCap() *big.Int { return b.caps.BankCap() }

// SlippageTolerance returns the current tolerance in basis points.
func (b *Bank) SlippageTolerance() uint64 { return b.params.SlippageTolerance() }

// SetSlippageTolerance forwards to the owner-gated admin surface.
func (b *Bank) SetSlippageTolerance(ctx context.Context, caller common.Address, bps uint64) error {
	return b.params.SetSlippageTolerance(ctx, caller, bps)
}

// SetPriceFeed forwards to the owner-gated admin surface.
func (b *Bank) SetPriceFeed(ctx context.Context, caller common.Address, feed PriceFeed) error {
	return b.params.SetPriceFeed(ctx, caller, feed)
}

// DepositNative credits the depositor with the oracle-converted value of a
// native-asset contribution. The price is fetched once and reused for the
// limit check, the cap check, and the credited amount.
func (b *Bank) DepositNative(ctx context.Context, depositor common.Address, amount *big.Int) (*big.Int, error) {
	if err := validateDeposit(depositor, amount); err != nil {
		return nil, err
	}
	if err := b.guard.Enter(); err != nil {
		return nil, err
	}
	defer b.guard.Exit()

	reading, err := b.oracle.ReferencePrice()
	if err != nil {
		return nil, err
	}
	normalized := ToUnitOfAccount(amount, NativeDecimals, reading.Price, reading.Decimals)
	if normalized.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := b.checkLimits(normalized); err != nil {
		return nil, err
	}
	if err := b.ledger.ApplyDeposit(depositor, AssetClassNative, normalized); err != nil {
		return nil, err
	}
	b.emitter.Emit(ctx, DepositRecorded{
		Depositor:  depositor,
		Class:      AssetClassNative,
		RawAmount:  new(big.Int).Set(amount),
		Normalized: new(big.Int).Set(normalized),
	})
	return normalized, nil
}

// DepositUnitOfAccount credits the depositor at face value after limit and
// cap checks. The unit-of-account asset carries the internal precision, so no
// conversion applies. Requires prior transfer authorization from the caller.
func (b *Bank) DepositUnitOfAccount(ctx context.Context, depositor common.Address, amount *big.Int) (*big.Int, error) {
	if err := validateDeposit(depositor, amount); err != nil {
		return nil, err
	}
	if err := b.guard.Enter(); err != nil {
		return nil, err
	}
	defer b.guard.Exit()
	return b.creditUnitDeposit(ctx, depositor, b.unit, amount, amount)
}

// DepositToken pulls an arbitrary token from the caller, swaps it into the
// unit-of-account asset, and credits the resulting amount. Route availability
// is validated before any funds are pulled; a post-swap limit violation
// returns the swapped output to the depositor so no value is stranded.
func (b *Bank) DepositToken(ctx context.Context, depositor, token common.Address, amount *big.Int) (*big.Int, error) {
	if err := validateDeposit(depositor, amount); err != nil {
		return nil, err
	}
	if token == (common.Address{}) {
		return nil, ErrInvalidAsset
	}
	if err := b.guard.Enter(); err != nil {
		return nil, err
	}
	defer b.guard.Exit()

	if token == b.unit {
		return b.creditUnitDeposit(ctx, depositor, token, amount, amount)
	}

	// Route and expected output are resolved before pulling funds so a
	// routeless or over-limit deposit never strips the caller.
	path, err := b.router.SelectPath(ctx, token)
	if err != nil {
		return nil, err
	}
	expected, err := b.router.Quote(ctx, token, amount)
	if err != nil {
		return nil, err
	}
	if expected.Sign() <= 0 {
		return nil, ErrSwapFailed
	}
	if err := b.checkLimits(expected); err != nil {
		return nil, err
	}
	if err := b.tokens.TransferFrom(ctx, token, depositor, b.self, amount); err != nil {
		return nil, fmt.Errorf("vault: pull deposit: %w", err)
	}
	received, err := b.router.Execute(ctx, token, amount)
	if err != nil {
		// The swap never executed; hand the pulled input back.
		if refundErr := b.tokens.Transfer(ctx, token, depositor, amount); refundErr != nil {
			return nil, fmt.Errorf("vault: refund after failed swap: %v: %w", refundErr, err)
		}
		return nil, err
	}
	if err := b.checkLimits(received); err != nil {
		// Executed output drifted past a ceiling; return it rather than
		// crediting above the configured bounds.
		if refundErr := b.tokens.Transfer(ctx, b.unit, depositor, received); refundErr != nil {
			return nil, fmt.Errorf("vault: refund after limit violation: %v: %w", refundErr, err)
		}
		return nil, err
	}
	b.emitter.Emit(ctx, SwapExecuted{
		Depositor: depositor,
		TokenIn:   token,
		TokenOut:  b.unit,
		Route:     path.Kind(),
		AmountIn:  new(big.Int).Set(amount),
		AmountOut: new(big.Int).Set(received),
	})
	if err := b.ledger.ApplyDeposit(depositor, AssetClassUnitOfAccount, received); err != nil {
		return nil, err
	}
	b.emitter.Emit(ctx, DepositRecorded{
		Depositor:  depositor,
		Class:      AssetClassUnitOfAccount,
		Asset:      token,
		RawAmount:  new(big.Int).Set(amount),
		Normalized: new(big.Int).Set(received),
	})
	return received, nil
}

// WithdrawNative debits the oracle-converted value of the requested native
// amount and sends the native asset out. A failed outbound transfer restores
// the ledger before returning.
func (b *Bank) WithdrawNative(ctx context.Context, depositor common.Address, amount *big.Int) (*big.Int, error) {
	if err := validateDeposit(depositor, amount); err != nil {
		return nil, err
	}
	if err := b.guard.Enter(); err != nil {
		return nil, err
	}
	defer b.guard.Exit()

	reading, err := b.oracle.ReferencePrice()
	if err != nil {
		return nil, err
	}
	normalized := ToUnitOfAccount(amount, NativeDecimals, reading.Price, reading.Decimals)
	if normalized.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := b.caps.CheckTxLimit(normalized); err != nil {
		return nil, err
	}
	if err := b.ledger.ApplyWithdrawal(depositor, AssetClassNative, normalized); err != nil {
		return nil, err
	}
	if err := b.native.Send(ctx, depositor, amount); err != nil {
		if restoreErr := b.ledger.RevertWithdrawal(depositor, AssetClassNative, normalized); restoreErr != nil {
			return nil, fmt.Errorf("vault: restore after failed send: %v: %w", restoreErr, err)
		}
		return nil, fmt.Errorf("vault: native transfer: %w", err)
	}
	b.emitter.Emit(ctx, WithdrawalRecorded{
		Depositor:  depositor,
		Class:      AssetClassNative,
		RawAmount:  new(big.Int).Set(amount),
		Normalized: new(big.Int).Set(normalized),
	})
	return normalized, nil
}

// WithdrawUnitOfAccount debits at face value and transfers the
// unit-of-account asset out, restoring the ledger if the transfer fails.
func (b *Bank) WithdrawUnitOfAccount(ctx context.Context, depositor common.Address, amount *big.Int) (*big.Int, error) {
	if err := validateDeposit(depositor, amount); err != nil {
		return nil, err
	}
	if err := b.guard.Enter(); err != nil {
		return nil, err
	}
	defer b.guard.Exit()

	if err := b.caps.CheckTxLimit(amount); err != nil {
		return nil, err
	}
	if err := b.ledger.ApplyWithdrawal(depositor, AssetClassUnitOfAccount, amount); err != nil {
		return nil, err
	}
	if err := b.tokens.Transfer(ctx, b.unit, depositor, amount); err != nil {
		if restoreErr := b.ledger.RevertWithdrawal(depositor, AssetClassUnitOfAccount, amount); restoreErr != nil {
			return nil, fmt.Errorf("vault: restore after failed transfer: %v: %w", restoreErr, err)
		}
		return nil, fmt.Errorf("vault: token transfer: %w", err)
	}
	b.emitter.Emit(ctx, WithdrawalRecorded{
		Depositor:  depositor,
		Class:      AssetClassUnitOfAccount,
		RawAmount:  new(big.Int).Set(amount),
		Normalized: new(big.Int).Set(amount),
	})
	return new(big.Int).Set(amount), nil
}

// BalanceOf returns the depositor's balance in the given class.
func (b *Bank) BalanceOf(depositor common.Address, class AssetClass) (*big.Int, error) {
	return b.ledger.BalanceOf(depositor, class)
}

// TotalOf returns the depositor's aggregate balance across classes.
func (b *Bank) TotalOf(depositor common.Address) (*big.Int, error) {
	return b.ledger.TotalOf(depositor)
}

// TotalBankValue returns the bank's total normalized holdings. Balances are
// stored already normalized, so both classes count at face value; this is the
// same valuation the cap gate uses.
func (b *Bank) TotalBankValue() (*big.Int, error) {
	return b.ledger.TotalSupply()
}

// Counters returns the monotonic deposit and withdrawal counts.
func (b *Bank) Counters() (deposits, withdrawals uint64, err error) {
	return b.ledger.Counters()
}

// HasRoute reports whether the token can be swapped into the unit of account.
func (b *Bank) HasRoute(ctx context.Context, token common.Address) (bool, error) {
	if token == b.unit {
		return true, nil
	}
	return b.router.HasRoute(ctx, token)
}

// QuoteSwap previews the unit-of-account output for a token amount, zero when
// no route exists.
func (b *Bank) QuoteSwap(ctx context.Context, token common.Address, amount *big.Int) (*big.Int, error) {
	if token == b.unit {
		if amount == nil || amount.Sign() <= 0 {
			return nil, ErrInvalidAmount
		}
		return new(big.Int).Set(amount), nil
	}
	return b.router.Quote(ctx, token, amount)
}

func (b *Bank) creditUnitDeposit(ctx context.Context, depositor, asset common.Address, raw, normalized *big.Int) (*big.Int, error) {
	if err := b.checkLimits(normalized); err != nil {
		return nil, err
	}
	if err := b.tokens.TransferFrom(ctx, b.unit, depositor, b.self, raw); err != nil {
		return nil, fmt.Errorf("vault: pull deposit: %w", err)
	}
	if err := b.ledger.ApplyDeposit(depositor, AssetClassUnitOfAccount, normalized); err != nil {
		return nil, err
	}
	b.emitter.Emit(ctx, DepositRecorded{
		Depositor:  depositor,
		Class:      AssetClassUnitOfAccount,
		Asset:      asset,
		RawAmount:  new(big.Int).Set(raw),
		Normalized: new(big.Int).Set(normalized),
	})
	return new(big.Int).Set(normalized), nil
}

func (b *Bank) checkLimits(normalized *big.Int) error {
	if err := b.caps.CheckTxLimit(normalized); err != nil {
		return err
	}
	current, err := b.ledger.TotalSupply()
	if err != nil {
		return err
	}
	return b.caps.CheckBankCap(current, normalized)
}

func validateDeposit(depositor common.Address, amount *big.Int) error {
	if depositor == (common.Address{}) {
		return ErrInvalidDepositor
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
