package vault

import "sync/atomic"

// Guard is a two-state execution lock scoped to a single bank instance. Every
// entry point that mutates the ledger or calls an external collaborator
// acquires it on entry and releases it on every exit path. The host already
// serialises operations; the guard exists against the narrower hazard of a
// collaborator calling back into the bank mid-operation.
type Guard struct {
	locked atomic.Bool
}

// Enter acquires the lock. A call while the lock is held fails with
// ErrReentrancy and leaves the lock state untouched.
func (g *Guard) Enter() error {
	if g == nil {
		return ErrReentrancy
	}
	if !g.locked.CompareAndSwap(false, true) {
		return ErrReentrancy
	}
	return nil
}

// Exit releases the lock. Safe to defer immediately after a successful Enter.
func (g *Guard) Exit() {
	if g == nil {
		return
	}
	g.locked.Store(false)
}
