// Package cli provides the interactive caresync command-line client.
//
// It wires configuration, the local SQLite store, the configured remote
// backend and a REPL for recording care data offline. A background loop
// keeps the device in sync: it watches the remote, runs a round shortly
// after local edits when auto-sync is on and runs periodic rounds.
//
// Commands:
//   - add / edit / delete records of any top-level kind
//   - list, history and at (the version in effect on a date)
//   - sync [--force], autosync on|off, status
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
