// Package logging provides structured logging for the easyfire bridge.
//
// This package wraps a package-global zap logger with convenience functions
// for the logging patterns used throughout the bridge.
//
// # Log Levels
//
//   - Debug: per-frame lines, desyncs, control bit dumps, capture flushes
//   - Info: connections, server lifecycle
//   - Warn: checksum mismatches, decode errors, reconnects
//   - Error: transport failures, startup failures
//
// # Configuration
//
// The level comes from the --log-level flag, the config file or the
// EASYFIRE_LOG_LEVEL environment variable. With none set, logging is silent.
// EASYFIRE_LOG_FORMAT=json switches to the JSON encoder:
//
//	if err := logging.Initialize(cfg.LogLevel); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// # Specialized Logging
//
//	logging.LogFrame("sense", counter, len(payload), received, computed)
//	logging.LogDesync("PRE1", 0x07, desyncs)
//	logging.LogControlBits(payload)
//	logging.LogCapture("Capture buffer", capture.Drain())
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. Initialize and SetLogger
// are meant to be called once at startup.
package logging
