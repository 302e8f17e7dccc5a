// Package preflight provides readiness checks for the binaries and filesystem
// paths tapedeck depends on.
//
// The CLI "tapedeck doctor" command runs every check and prints a summary.
// The generate command runs CheckSystemDeps before rendering so a missing
// recorder fails fast instead of once per tape.
package preflight
