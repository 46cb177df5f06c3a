// Package cli provides the interactive Aegis-Link command-line client.
//
// It wires configuration, the local vault database, access control,
// messaging over the broadcast transport, and an interactive REPL.
// Typical flow: prompt for role and PIN, start a background inbox watcher,
// and execute user commands until exit.
//
// Screens map to command gating:
//   - no session: login and the crypto utilities (keygen, hash)
//   - locked: only re-authorization (login), logout and status
//   - tamper: nothing but the tamper notice; exit still works
//
// Every command is an activity signal that postpones the idle lock.
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
