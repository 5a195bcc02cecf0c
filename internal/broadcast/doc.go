// Package broadcast delivers one message to every stored recipient and can
// later recall (delete) what the latest broadcast sent.
//
// A run walks recipients in registration order, one attempt per recipient,
// paced by a rate limiter. Every BatchSize attempts it stores a checkpoint
// and pauses, so a restart resumes near where the previous process stopped.
// Recipients the platform reports as permanently unreachable are deleted.
//
// The Engine and the Recaller share a Guard: at most one of them runs at a
// time.
package broadcast
