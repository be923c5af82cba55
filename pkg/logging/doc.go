// Package logging provides structured logging configuration for moxy.
//
// This package wraps log/slog so every moxy component logs through the same
// shape of logger. It supports configurable levels, text or JSON output, a
// fan-out handler for writing to several sinks at once, and a Loki push
// handler for log aggregation.
//
// # Usage
//
// Create a logger with desired configuration:
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelDebug,
//	    Format: logging.FormatJSON,
//	})
//
//	logger.Info("rewrite server started", "port", 8001)
//	logger.Error("upstream request failed", "error", err)
//
// # Integration
//
// Components accept a *slog.Logger in their constructor or via an option.
// When a logger is required but output is unwanted (tests, library use),
// pass logging.Nop().
package logging
