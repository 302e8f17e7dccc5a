// Package tape discovers recording scripts on disk and resolves them into
// Script values carrying their declared output path.
//
// A tape is opaque apart from its Output directive. Every tape must declare
// exactly one; zero or several directives make the tape malformed. Within a
// resolved batch no two tapes may declare the same output, compared after
// cleaning and Unicode case folding.
package tape
