// Package recorder runs the external recorder for a single tape inside a
// private scratch directory.
//
// Each Render call allocates a fresh job directory under the scratch root,
// points the recorder at it through the configured state variable, and
// removes it on every exit path, cancellation included. The process-wide
// environment is never touched, so calls are safe to run concurrently.
package recorder
