// Package cli is the workgraph command tree. It reads configuration from
// flags, the environment and an optional YAML file, turns it into the
// application's configuration, and maps failures onto process exit codes.
package cli
