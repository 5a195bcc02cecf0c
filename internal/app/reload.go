package app

import (
	"context"
	"slices"
	"strings"

	"castbot/internal/config"
	logx "castbot/pkg/logx"
)

// startConfigReload applies hot-reloaded configs. Storage and the bot token
// need a restart; everything else changes live.
func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// keep only the newest of a burst
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded, no changes")
		return
	}

	if slices.Contains(sections, "storage") || prev.Telegram.Token != next.Telegram.Token {
		a.log.Warn("storage or token changed, restart required for them to take effect")
	}

	a.logs.SetTelegramTarget(groupLogChat(next), next.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(next))

	a.router.SetOwners(next.Telegram.OwnerUserIDs)
	a.bot.SetWebAppURL(next.Telegram.WebAppURL)

	if bcfg, err := mapBroadcastConfig(next); err != nil {
		a.log.Warn("invalid broadcast config, keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(bcfg)
		a.recall.SetInterval(bcfg.RecallInterval)
	}

	a.sched.Apply(mapSchedulerConfig(next))
	if err := a.registerHousekeeping(next); err != nil {
		a.log.Warn("housekeeping schedules not updated", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
