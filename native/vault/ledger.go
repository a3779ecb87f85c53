package vault

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Storage abstracts the key-value persistence required by the ledger. Values
// are encoded by the implementation (the bundled store uses RLP over sqlite).
// KVUpdate applies every put issued through the writer atomically; a returned
// error must discard all of them.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVUpdate(fn func(KVWriter) error) error
}

// KVWriter is the write scope handed out by Storage.KVUpdate.
type KVWriter interface {
	KVPut(key []byte, value interface{}) error
}

var (
	balancePrefix = []byte("vault/balance/")
	supplyPrefix  = []byte("vault/supply/")
	countersKey   = []byte("vault/counters")
)

type storedAmount struct {
	Amount string
}

type storedCounters struct {
	Deposits    uint64
	Withdrawals uint64
}

// Ledger is the balance store: per-depositor, per-asset-class amounts in the
// internal accounting unit, per-class supply totals, and monotonic operation
// counters. Every mutation commits its balance, supply and counter writes in
// one atomic storage update so a mid-write failure never strands partial
// state; callers pre-validate limits and caps.
type Ledger struct {
	store Storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("vault: storage required")
	}
	return &Ledger{store: store}, nil
}

// BalanceOf returns the held amount for the depositor and class. Entries are
// zero-initialised implicitly; a missing entry reads as zero.
func (l *Ledger) BalanceOf(depositor common.Address, class AssetClass) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("vault: ledger not initialised")
	}
	if !class.Valid() {
		return nil, fmt.Errorf("vault: unknown asset class %q", class)
	}
	return l.readAmount(balanceKey(class, depositor))
}

// TotalOf sums the depositor's balances across both asset classes.
func (l *Ledger) TotalOf(depositor common.Address) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("vault: ledger not initialised")
	}
	total := big.NewInt(0)
	for _, class := range AssetClasses() {
		balance, err := l.readAmount(balanceKey(class, depositor))
		if err != nil {
			return nil, err
		}
		total.Add(total, balance)
	}
	return total, nil
}

// SupplyOf returns the aggregate normalized value held in the class.
func (l *Ledger) SupplyOf(class AssetClass) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("vault: ledger not initialised")
	}
	if !class.Valid() {
		return nil, fmt.Errorf("vault: unknown asset class %q", class)
	}
	return l.readAmount(supplyKey(class))
}

// TotalSupply sums the per-class supplies, i.e. the bank's total normalized
// holdings at face value.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("vault: ledger not initialised")
	}
	total := big.NewInt(0)
	for _, class := range AssetClasses() {
		supply, err := l.readAmount(supplyKey(class))
		if err != nil {
			return nil, err
		}
		total.Add(total, supply)
	}
	return total, nil
}

// Credit adds the normalized amount to the depositor's balance and the class
// supply. The mutation is unconditional; limit and cap checks happen upstream.
func (l *Ledger) Credit(depositor common.Address, class AssetClass, amount *big.Int) error {
	return l.apply(depositor, class, amount, false, nil)
}

// Debit subtracts the normalized amount, failing when the balance is
// insufficient. Balances are reduced to zero at most, never below.
func (l *Ledger) Debit(depositor common.Address, class AssetClass, amount *big.Int) error {
	return l.apply(depositor, class, amount, true, nil)
}

// ApplyDeposit credits the balance and bumps the deposit counter in one
// atomic write. Either everything persists or nothing does.
func (l *Ledger) ApplyDeposit(depositor common.Address, class AssetClass, amount *big.Int) error {
	return l.apply(depositor, class, amount, false, func(c *storedCounters) { c.Deposits++ })
}

// ApplyWithdrawal debits the balance and bumps the withdrawal counter in one
// atomic write, failing on overdraft.
func (l *Ledger) ApplyWithdrawal(depositor common.Address, class AssetClass, amount *big.Int) error {
	return l.apply(depositor, class, amount, true, func(c *storedCounters) { c.Withdrawals++ })
}

// RevertWithdrawal is the compensating entry for a withdrawal whose outbound
// transfer failed after the debit committed: restores the balance and backs
// the counter out, atomically.
func (l *Ledger) RevertWithdrawal(depositor common.Address, class AssetClass, amount *big.Int) error {
	return l.apply(depositor, class, amount, false, func(c *storedCounters) {
		if c.Withdrawals > 0 {
			c.Withdrawals--
		}
	})
}

// Counters returns the total deposit and withdrawal counts.
func (l *Ledger) Counters() (deposits, withdrawals uint64, err error) {
	if l == nil {
		return 0, 0, fmt.Errorf("vault: ledger not initialised")
	}
	var stored storedCounters
	if _, err := l.store.KVGet(countersKey, &stored); err != nil {
		return 0, 0, err
	}
	return stored.Deposits, stored.Withdrawals, nil
}

// apply is the single mutation path: balance, class supply and (optionally)
// the counters change together inside one storage update.
func (l *Ledger) apply(depositor common.Address, class AssetClass, amount *big.Int, debit bool, bump func(*storedCounters)) error {
	if l == nil {
		return fmt.Errorf("vault: ledger not initialised")
	}
	if !class.Valid() {
		return fmt.Errorf("vault: unknown asset class %q", class)
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	key := balanceKey(class, depositor)
	balance, err := l.readAmount(key)
	if err != nil {
		return err
	}
	supply, err := l.readAmount(supplyKey(class))
	if err != nil {
		return err
	}
	if debit {
		if amount.Cmp(balance) > 0 {
			return &InsufficientBalanceError{Available: balance, Requested: new(big.Int).Set(amount)}
		}
		balance.Sub(balance, amount)
		supply.Sub(supply, amount)
		if supply.Sign() < 0 {
			return fmt.Errorf("vault: supply for %s would go negative", class)
		}
	} else {
		balance.Add(balance, amount)
		supply.Add(supply, amount)
	}
	var counters storedCounters
	if bump != nil {
		if _, err := l.store.KVGet(countersKey, &counters); err != nil {
			return err
		}
		bump(&counters)
	}
	return l.store.KVUpdate(func(w KVWriter) error {
		if err := putAmount(w, key, balance); err != nil {
			return err
		}
		if err := putAmount(w, supplyKey(class), supply); err != nil {
			return err
		}
		if bump != nil {
			return w.KVPut(countersKey, counters)
		}
		return nil
	})
}

func (l *Ledger) readAmount(key []byte) (*big.Int, error) {
	var stored storedAmount
	ok, err := l.store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(stored.Amount) == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(stored.Amount), 10)
	if !ok {
		return nil, fmt.Errorf("vault: invalid stored amount %q", stored.Amount)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("vault: stored amount %q negative", stored.Amount)
	}
	return amount, nil
}

func putAmount(w KVWriter, key []byte, amount *big.Int) error {
	return w.KVPut(key, storedAmount{Amount: amount.String()})
}

func balanceKey(class AssetClass, depositor common.Address) []byte {
	suffix := string(class) + "/" + strings.ToLower(depositor.Hex())
	key := make([]byte, 0, len(balancePrefix)+len(suffix))
	key = append(key, balancePrefix...)
	return append(key, suffix...)
}

func supplyKey(class AssetClass) []byte {
	key := make([]byte, 0, len(supplyPrefix)+len(class))
	key = append(key, supplyPrefix...)
	return append(key, class...)
}
