package broadcast

import (
	"sync"
	"sync/atomic"
)

type State int32

const (
	StateIdle State = iota
	StateBroadcasting
	StateRecalling
)

func (s State) String() string {
	switch s {
	case StateBroadcasting:
		return "broadcasting"
	case StateRecalling:
		return "recalling"
	default:
		return "idle"
	}
}

// Guard is the single slot shared by the Engine and the Recaller. It is
// idle when the process starts.
type Guard struct {
	state atomic.Int32
}

func NewGuard() *Guard { return &Guard{} }

func (g *Guard) State() State { return State(g.state.Load()) }

func (g *Guard) Busy() bool { return g.State() != StateIdle }

// acquire moves the guard from idle to want. The returned release is
// idempotent. When the guard is held the error names the current holder.
func (g *Guard) acquire(want State) (release func(), err error) {
	for {
		if g.state.CompareAndSwap(int32(StateIdle), int32(want)) {
			var once sync.Once
			return func() { once.Do(func() { g.state.Store(int32(StateIdle)) }) }, nil
		}
		switch held := g.State(); held {
		case StateIdle:
			// released between the CAS and the load
			continue
		case StateBroadcasting:
			if want == StateBroadcasting {
				return nil, ErrAlreadyInProgress
			}
			return nil, ErrBroadcastInProgress
		default:
			return nil, ErrRecallInProgress
		}
	}
}
