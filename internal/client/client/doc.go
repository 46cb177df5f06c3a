// Package client contains the client-side plumbing of the vault.
//
// # Overview
//
// The package provides:
//  1. A transport contract (see the Client interface) used by the messaging
//     service to hand opaque payloads to every other participant.
//  2. SocketClient, the transport shared by the processes of one device.
//     Members meet at a Unix socket next to the vault; the first one to bind
//     it relays CBOR items between all members, and when it leaves another
//     member takes over.
//  3. Bus, an in-process implementation where each participant joins with
//     its own LocalClient. It serves vaults without a file (":memory:") and
//     tests.
//  4. Local persistence bootstrap (InitDatabase, RunMigrations): an SQLite
//     database with embedded goose migrations.
//
// # Delivery
//
// Broadcast is fire-and-forget: no ordering across payload kinds, no
// acknowledgement, no retry. A receiver whose inbox is full loses the
// payload. Payloads sent while the socket hub changes hands are lost too;
// Broadcast reports ErrUnavailable meanwhile. Every receiver gets its own decoded copy of the payload.
//
// # Error Handling
//
// Conditions are exposed as sentinel errors matched with errors.Is:
// ErrClosed and ErrUnavailable.
package client
