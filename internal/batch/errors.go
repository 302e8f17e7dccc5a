package batch

import (
	"fmt"
	"strings"

	"tapedeck/internal/tape"
)

// JobError is one failed job within a batch.
type JobError struct {
	Index  int
	Script tape.Script
	Err    error
}

func (e JobError) Error() string {
	return fmt.Sprintf("%s: %v", e.Script.Name, e.Err)
}

// BatchError lists every failed job of a batch in input order.
type BatchError struct {
	Failures []JobError
	Total    int
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		parts = append(parts, failure.Error())
	}
	return fmt.Sprintf("%d of %d renders failed: %s", len(e.Failures), e.Total, strings.Join(parts, "; "))
}

// Unwrap exposes each job error to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, failure := range e.Failures {
		errs = append(errs, failure.Err)
	}
	return errs
}

// FailedTapes returns the names of the failed tapes in input order.
func (e *BatchError) FailedTapes() []string {
	names := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		names = append(names, failure.Script.Name)
	}
	return names
}
