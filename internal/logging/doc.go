// Package logging assembles structured slog loggers and formatting helpers used
// across tapedeck components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so render jobs automatically tag
// log lines with run IDs, job IDs, and tape names. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the tool.
package logging
