// Package batch fans a set of tapes out to concurrent render jobs and joins
// their results back in input order.
//
// Every job runs to completion. A failing job never cancels its siblings, and
// failures are reported together after the join as a single BatchError.
package batch
