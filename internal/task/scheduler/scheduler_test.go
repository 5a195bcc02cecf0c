package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "castbot/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		in    string
		kind  SpecKind
		cron  string
		every time.Duration
	}{
		{"0 */6 * * *", SpecCron, "0 */6 * * *", 0},
		{"@daily", SpecCron, "@daily", 0},
		{"cron:@hourly", SpecCron, "@hourly", 0},
		{"6h", SpecInterval, "", 6 * time.Hour},
		{"02:30", SpecInterval, "", 2*time.Hour + 30*time.Minute},
		{"every:45m", SpecInterval, "", 45 * time.Minute},
	}
	for _, c := range cases {
		got, err := ParseSchedule(c.in)
		if err != nil {
			t.Fatalf("ParseSchedule(%q) error: %v", c.in, err)
		}
		if got.Kind != c.kind || got.Cron != c.cron || got.Every != c.every {
			t.Fatalf("ParseSchedule(%q) = %+v", c.in, got)
		}
	}
	for _, bad := range []string{"", "soon", "0s", "01:75", "cron:"} {
		if _, err := ParseSchedule(bad); err == nil {
			t.Fatalf("ParseSchedule(%q) succeeded, want error", bad)
		}
	}
}

func TestAddCronValidatesAndReplaces(t *testing.T) {
	s := New(Config{}, logx.Nop())
	noop := func(context.Context) error { return nil }

	if err := s.AddCron("bad", "not a spec", 0, noop); err == nil {
		t.Fatalf("AddCron accepted an invalid spec")
	}
	if err := s.AddCron("prune", "0 * * * *", time.Minute, noop); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	if err := s.AddSchedule("prune", "6h", time.Minute, noop); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "@every 6h0m0s" {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if !s.Remove("prune") || s.Remove("prune") {
		t.Fatalf("Remove did not report existence correctly")
	}
}

func TestExecuteSkipsOverlap(t *testing.T) {
	s := New(Config{}, logx.Nop())
	st := &jobStats{}
	release := make(chan struct{})
	started := make(chan struct{})
	job := func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.execute(context.Background(), "slow", 0, job, st)
	}()
	<-started
	s.execute(context.Background(), "slow", 0, job, st)
	close(release)
	wg.Wait()

	if st.runs != 1 || st.skipped != 1 {
		t.Fatalf("runs = %d, skipped = %d, want 1, 1", st.runs, st.skipped)
	}
}

func TestExecuteRecoversAndRecords(t *testing.T) {
	s := New(Config{}, logx.Nop())
	st := &jobStats{}

	s.execute(context.Background(), "boom", 0, func(context.Context) error { panic("kaboom") }, st)
	s.execute(context.Background(), "fail", 0, func(context.Context) error { return errors.New("nope") }, st)
	s.execute(context.Background(), "deadline", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, st)

	if st.runs != 3 || st.failures != 3 {
		t.Fatalf("runs = %d, failures = %d, want 3, 3", st.runs, st.failures)
	}
	hist := s.Snapshot().History
	if len(hist) != 3 || !hist[0].Panic || hist[1].Err != "nope" || hist[2].Err != context.DeadlineExceeded.Error() {
		t.Fatalf("history = %+v", hist)
	}
}

func TestApplyTogglesTriggering(t *testing.T) {
	s := New(Config{Enabled: false}, logx.Nop())
	if err := s.AddInterval("tick", time.Hour, 0, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	s.Start(context.Background())
	if !s.Snapshot().Schedules[0].Next.IsZero() {
		t.Fatalf("disabled scheduler computed a next run")
	}

	s.Apply(Config{Enabled: true, Timezone: "UTC"})
	deadline := time.Now().Add(2 * time.Second)
	snap := s.Snapshot()
	for snap.Schedules[0].Next.IsZero() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		snap = s.Snapshot()
	}
	if snap.Timezone != "UTC" || snap.Schedules[0].Next.IsZero() {
		t.Fatalf("snapshot after enable = %+v", snap)
	}

	s.Apply(Config{Enabled: false})
	if !s.Snapshot().Schedules[0].Next.IsZero() {
		t.Fatalf("scheduler still triggering after disable")
	}
}
