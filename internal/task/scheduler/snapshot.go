package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	out := Snapshot{Enabled: s.cfg.Enabled, Timezone: s.cfg.Timezone}
	if out.Timezone == "" {
		out.Timezone = time.Local.String()
		if s.loc != nil {
			out.Timezone = s.loc.String()
		}
	}
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout, Running: d.stats.running.Load()}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		d.stats.mu.Lock()
		it.Runs, it.Skipped, it.Failures = d.stats.runs, d.stats.skipped, d.stats.failures
		it.LastErr, it.LastTook = d.stats.lastErr, d.stats.lastTook
		d.stats.mu.Unlock()
		out.Schedules = append(out.Schedules, it)
	}
	s.mu.Unlock()

	s.hmu.Lock()
	out.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}
