// Package credentials persists per-role vault credentials in the local
// SQLite "metadata" table: the current PIN and the channel key wrapped under
// a key derived from that PIN.
//
// Keys are role-qualified, e.g. "aegis_pin_USER_A". Wrapped keys are stored
// CBOR-encoded. Absent records surface as common.ErrorNotFound.
//
// PINs are stored as entered. This is a known weakness; see DESIGN.md.
package credentials
