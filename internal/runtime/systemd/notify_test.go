package systemd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "castbot/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	return true, nil
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func TestLifecycleStates(t *testing.T) {
	rec := &recorder{}
	n := New(logx.Nop())
	n.notify = rec.notify

	n.Ready()
	n.Status("broadcasting")
	n.Stopping()

	want := []string{daemon.SdNotifyReady, "STATUS=broadcasting", daemon.SdNotifyStopping}
	if len(rec.states) != len(want) {
		t.Fatalf("states = %v, want %v", rec.states, want)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Fatalf("states[%d] = %q, want %q", i, rec.states[i], want[i])
		}
	}
}

func TestWatchdogPings(t *testing.T) {
	rec := &recorder{}
	n := New(logx.Nop())
	n.notify = rec.notify
	n.watchdog = func(bool) (time.Duration, error) { return 20 * time.Millisecond, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Watchdog(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for rec.count(daemon.SdNotifyWatchdog) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if got := rec.count(daemon.SdNotifyWatchdog); got < 2 {
		t.Fatalf("watchdog pings = %d, want >= 2", got)
	}
}

func TestWatchdogDisabledReturns(t *testing.T) {
	n := New(logx.Nop())
	n.watchdog = func(bool) (time.Duration, error) { return 0, nil }
	n.Watchdog(context.Background())
}
