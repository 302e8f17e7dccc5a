// Package logs reads the tapedeck state log for the `tapedeck logs` command.
//
// Last returns the trailing lines of the file with bounded memory, and Follow
// polls from an offset until the context ends. Both accept an optional filter
// so a single generate run can be isolated by its run_id.
package logs
