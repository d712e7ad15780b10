// Package logging provides structured logging for the tempnode binaries.
//
// This package wraps a zap logger with package-level convenience functions and
// a handful of domain helpers used by the control loop. It is the node's log
// sink: append-only diagnostic output that is never consulted for control
// decisions.
//
// # Log Levels
//
//   - Debug: Poll ticks, raw payload bodies, driver chatter
//   - Info: Loop boundaries, association events, delivered reports
//   - Warn: Invalid sensor reads, failed or rejected reports, association timeouts
//   - Error: Driver faults that cannot be classified
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When no level is given, TEMPNODE_LOG_LEVEL is consulted. When neither is set
// the logger is a no-op, which keeps one-shot CLI commands quiet.
//
// # Output Format
//
// On a terminal the console encoder is used with ISO8601 timestamps. Otherwise
// every entry is a single JSON object per line, suitable for journald or a log
// shipper.
package logging
