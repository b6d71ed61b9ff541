package predict

import "sync/atomic"

// InFlightGuard suppresses re-entrant prediction calls at the call site: a
// new request while one is outstanding for the same subject is a no-op, not a
// queued duplicate.
type InFlightGuard struct {
	busy atomic.Bool
}

// Begin reports whether the caller may start a prediction. A false return
// means one is already in flight.
func (g *InFlightGuard) Begin() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Done releases the guard after a prediction completes.
func (g *InFlightGuard) Done() {
	g.busy.Store(false)
}
