package engine

import "sync/atomic"

// SellGuard lets exactly one caller claim the sell for a position's lifetime.
// It is never released, including after a failed sell.
type SellGuard struct {
	fired atomic.Bool
}

// TryAcquire reports whether the caller won the claim.
func (g *SellGuard) TryAcquire() bool {
	return g.fired.CompareAndSwap(false, true)
}

func (g *SellGuard) Fired() bool {
	return g.fired.Load()
}
