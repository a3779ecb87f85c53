package vault

import (
	"fmt"
	"math/big"
)

// Caps holds the two protective ceilings fixed at construction: the
// per-operation limit and the global bank capacity, both denominated in the
// internal accounting unit. Checks are advisory gates evaluated before any
// ledger mutation; they never mutate state themselves.
type Caps struct {
	limitPerTx *big.Int
	bankCap    *big.Int
}

// NewCaps validates and copies the supplied ceilings.
func NewCaps(limitPerTx, bankCap *big.Int) (*Caps, error) {
	if limitPerTx == nil || limitPerTx.Sign() <= 0 {
		return nil, fmt.Errorf("vault: per-operation limit must be positive")
	}
	if bankCap == nil || bankCap.Sign() <= 0 {
		return nil, fmt.Errorf("vault: bank cap must be positive")
	}
	return &Caps{
		limitPerTx: new(big.Int).Set(limitPerTx),
		bankCap:    new(big.Int).Set(bankCap),
	}, nil
}

// LimitPerTx returns a copy of the per-operation ceiling.
func (c *Caps) LimitPerTx() *big.Int {
	if c == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(c.limitPerTx)
}

// BankCap returns a copy of the global capacity ceiling.
func (c *Caps) BankCap() *big.Int {
	if c == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(c.bankCap)
}

// CheckTxLimit rejects normalized amounts above the per-operation ceiling.
func (c *Caps) CheckTxLimit(normalized *big.Int) error {
	if c == nil {
		return fmt.Errorf("vault: caps not initialised")
	}
	if normalized == nil || normalized.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if normalized.Cmp(c.limitPerTx) > 0 {
		return &LimitExceededError{
			Requested: new(big.Int).Set(normalized),
			Limit:     new(big.Int).Set(c.limitPerTx),
		}
	}
	return nil
}

// CheckBankCap rejects deposits whose projected total (current holdings plus
// the pending amount) would exceed the global capacity.
func (c *Caps) CheckBankCap(current, pending *big.Int) error {
	if c == nil {
		return fmt.Errorf("vault: caps not initialised")
	}
	if current == nil {
		current = big.NewInt(0)
	}
	if pending == nil || pending.Sign() <= 0 {
		return ErrInvalidAmount
	}
	projected := new(big.Int).Add(current, pending)
	if projected.Cmp(c.bankCap) > 0 {
		return &BankCapError{Projected: projected, Cap: new(big.Int).Set(c.bankCap)}
	}
	return nil
}
