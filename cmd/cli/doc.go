// Package cli constructs the shellbridge command-line interface, wiring the
// Cobra command hierarchy, configuration loader, structured logging, and the
// command execution engine. It exposes helpers to build reusable application
// instances and to execute the default command set as a reusable library.
package cli
