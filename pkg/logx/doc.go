// Package logx wires castbot's structured logging on top of zerolog.
//
// Output goes to any mix of three sinks:
//   - console (human readable, short timestamp and caller)
//   - file (JSON lines)
//   - Telegram (operator chat, filtered by level and rate limited)
//
// A Logger obtained from a Service follows Service.Apply, so hot-reloaded
// logging config takes effect without re-plumbing loggers through the app.
package logx
