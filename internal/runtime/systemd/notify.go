// Package systemd reports service state to systemd (Type=notify units)
// and feeds the watchdog. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "castbot/pkg/logx"
)

type Notifier struct {
	log logx.Logger
	// notify is daemon.SdNotify; swapped in tests
	notify func(unsetEnv bool, state string) (bool, error)
	// watchdog is daemon.SdWatchdogEnabled
	watchdog func(unsetEnv bool) (time.Duration, error)
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log.With(logx.String("comp", "systemd")), notify: daemon.SdNotify, watchdog: daemon.SdWatchdogEnabled}
}

func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

func (n *Notifier) Reloading() { n.send(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(s string) { n.send("STATUS=" + s) }

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	switch {
	case err != nil:
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

// Watchdog pings systemd at half the configured WatchdogSec until ctx
// ends. It returns at once when the unit has no watchdog.
func (n *Notifier) Watchdog(ctx context.Context) {
	every, err := n.watchdog(false)
	if err != nil {
		n.log.Warn("watchdog check failed", logx.Err(err))
		return
	}
	if every <= 0 {
		return
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	n.log.Info("watchdog enabled", logx.Duration("interval", every))
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
