package tape

import (
	"fmt"
	"strings"

	"tapedeck/internal/services"
)

// NotFoundError reports a tape name with no matching file.
type NotFoundError struct {
	Name string
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tape %q not found at %s", e.Name, e.Path)
}

func (e *NotFoundError) Unwrap() error { return services.ErrNotFound }

// MalformedScriptError reports a tape that does not declare exactly one output.
type MalformedScriptError struct {
	Path string
	// Directives is the number of Output lines found.
	Directives int
}

func (e *MalformedScriptError) Error() string {
	if e.Directives == 0 {
		return fmt.Sprintf("tape %s: no Output directive", e.Path)
	}
	return fmt.Sprintf("tape %s: %d Output directives, want exactly one", e.Path, e.Directives)
}

func (e *MalformedScriptError) Unwrap() error { return services.ErrValidation }

// DuplicateOutputError reports tapes in one batch that would write the same artifact.
type DuplicateOutputError struct {
	Output string
	Tapes  []string
}

func (e *DuplicateOutputError) Error() string {
	return fmt.Sprintf("output %q declared by multiple tapes: %s", e.Output, strings.Join(e.Tapes, ", "))
}

func (e *DuplicateOutputError) Unwrap() error { return services.ErrValidation }
