// Package main hosts the tapedeck CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into generate
// and check runs, history and scratch maintenance, environment diagnostics,
// and configuration scaffolding. It centralizes configuration resolution and
// structured logging setup so subcommands can focus on output instead of
// wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
