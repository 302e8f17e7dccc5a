// Package pipeline wires the catalog, renderer, scheduler, review writer, and
// staleness oracle into the generate and check workflows.
//
// Generate holds an exclusive file lock for its whole run so two invocations
// never render into the same outputs. Check is read-only and takes no lock.
package pipeline
