package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "castbot/pkg/logx"
)

// AddSchedule accepts a cron spec, a Go duration ("6h") or an HH:MM
// interval ("02:30") and registers the job under name.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if ps.Kind == SpecInterval {
		return s.AddInterval(name, ps.Every, timeout, job)
	}
	return s.AddCron(name, ps.Cron, timeout, job)
}

// AddCron registers job under name, replacing an existing schedule with
// the same name.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	name, spec = strings.TrimSpace(name), strings.TrimSpace(spec)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if !strings.HasPrefix(spec, "@every") {
		if _, err := s.parser.Parse(spec); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, timeout: timeout, job: job, stats: &jobStats{}})
	if s.c != nil {
		s.registerLocked(&s.defs[len(s.defs)-1])
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout))
	return nil
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) error {
	if every <= 0 {
		return errors.New("interval must be > 0")
	}
	return s.AddCron(name, "@every "+every.String(), timeout, job)
}

// Remove unschedules name and reports whether it existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			continue
		}
		s.defs[n] = d
		n++
	}
	removed := n < len(s.defs)
	s.defs = s.defs[:n]
	return removed
}

// registerLocked adds d to the running cron. Intervals get a random first
// delay so jobs do not all fire together after startup.
func (s *Service) registerLocked(d *scheduleDef) {
	ctx, name, timeout, fn, st := s.ctx, d.name, d.timeout, d.job, d.stats
	job := cron.FuncJob(func() { s.execute(ctx, name, timeout, fn, st) })

	if every, ok := strings.CutPrefix(d.spec, "@every"); ok {
		if dur, err := time.ParseDuration(strings.TrimSpace(every)); err == nil && dur > 0 {
			sched, _ := spreadInterval(dur, time.Now().In(s.loc), d.name)
			d.entryID = s.c.Schedule(sched, job)
			return
		}
	}
	id, err := s.c.AddJob(d.spec, job)
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entryID = id
}
