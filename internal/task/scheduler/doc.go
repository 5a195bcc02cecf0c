// Package scheduler runs named periodic jobs on robfig/cron. Overlapping
// triggers of the same job are skipped, panics are recovered and every job
// runs under its own timeout.
package scheduler
