package recorder

import (
	"fmt"
	"strings"

	"tapedeck/internal/services"
	"tapedeck/internal/tape"
)

// RenderFailedError reports a recorder process that exited non-zero.
type RenderFailedError struct {
	Script   tape.Script
	ExitCode int
	// Output holds the combined stdout and stderr of the recorder.
	Output string
}

func (e *RenderFailedError) Error() string {
	msg := fmt.Sprintf("render %s: recorder exited with status %d", e.Script.Name, e.ExitCode)
	if tail := lastLine(e.Output); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *RenderFailedError) Unwrap() error { return services.ErrExternalTool }

// MissingOutputError reports a successful recorder exit that left no file at
// the declared output path.
type MissingOutputError struct {
	Script tape.Script
	Path   string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("render %s: recorder succeeded but %s does not exist", e.Script.Name, e.Path)
}

func (e *MissingOutputError) Unwrap() error { return services.ErrExternalTool }

func lastLine(output string) string {
	trimmed := strings.TrimRight(output, "\n")
	if idx := strings.LastIndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return strings.TrimSpace(trimmed)
}
