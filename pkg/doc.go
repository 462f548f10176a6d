// Package pkg provides shared utilities for the lospdisk tunnel stack.
//
// This package contains common functionality used across the BOT engine,
// the SCSI layer, the LOSP tunnel and the statistics engine, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error kinds matched with [errors.Is]
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with per-layer context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentBOT, "command complete", "tag", 7)
//
// # Errors
//
// Typed errors in the msc and losp packages unwrap to the sentinel kinds
// defined here:
//
//	if errors.Is(err, pkg.ErrPartialWrite) {
//	    // Earlier sectors are already committed
//	}
package pkg
