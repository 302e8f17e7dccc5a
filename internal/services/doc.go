// Package services defines shared utilities consumed by the pipeline, the
// recorder, and the git and build integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, job IDs, and tape names for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified with errors.Is regardless of which component raised them.
//   - The Executor abstraction that makes external command execution
//     testable. Every subprocess tapedeck starts goes through it.
//
// Use these helpers when wiring new components so operational behaviour
// (error handling, observability, process execution) stays uniform.
package services
