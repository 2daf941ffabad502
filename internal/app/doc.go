// Package app wires the workflow graph engine together: logger, component
// catalog, store, tracing and the graph manager. It is decoupled from any
// entrypoint; the CLI builds a Config and hands it to NewApp.
package app
