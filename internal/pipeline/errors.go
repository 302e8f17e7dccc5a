package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"tapedeck/internal/staleness"
)

// ErrLocked is returned when another generate run holds the lock.
var ErrLocked = errors.New("another tapedeck generate run is in progress")

// StaleError reports artifacts that are not current with HEAD.
type StaleError struct {
	Failing []string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("%d stale artifact(s): %s", len(e.Failing), strings.Join(e.Failing, ", "))
}

// StaleFromReport converts a failed report into a *StaleError. A passing
// report yields nil.
func StaleFromReport(report staleness.Report) error {
	if report.Passed() {
		return nil
	}
	return &StaleError{Failing: append([]string(nil), report.Failing...)}
}
