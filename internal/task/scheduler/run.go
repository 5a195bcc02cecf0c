package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "castbot/pkg/logx"
)

// execute runs one trigger. A trigger that arrives while the previous run
// of the same job is still going is skipped.
func (s *Service) execute(parent context.Context, name string, timeout time.Duration, job Job, st *jobStats) {
	if !st.running.CompareAndSwap(false, true) {
		st.mu.Lock()
		st.skipped++
		st.mu.Unlock()
		s.log.Debug("schedule trigger skipped, still running", logx.String("name", name))
		return
	}
	defer st.running.Store(false)

	ctx := parent
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	}
	defer cancel()

	start := time.Now()
	panicked, err := runJob(ctx, job)
	took := time.Since(start)

	item := HistoryItem{Name: name, Started: start, Took: took, Panic: panicked}
	st.mu.Lock()
	st.runs++
	st.lastRun, st.lastTook = start, took
	st.lastErr = ""
	if err != nil {
		st.failures++
		st.lastErr = err.Error()
		item.Err = st.lastErr
	}
	st.mu.Unlock()
	s.record(item)

	if err != nil {
		s.log.Warn("job failed", logx.String("name", name), logx.Duration("took", took), logx.Err(err))
		return
	}
	s.log.Debug("job done", logx.String("name", name), logx.Duration("took", took))
}

func runJob(ctx context.Context, job Job) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked, err = true, fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return false, job(ctx)
}

func (s *Service) record(it HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, it)
	if over := len(s.history) - historySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}
