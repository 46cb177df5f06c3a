// Package common defines shared constants, sentinel errors and byte helpers
// used across the Aegis-Link vault. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Access control errors.
	ErrorUnauthorized                = errors.New("unauthorized")
	ErrNoSession                     = errors.New("no active session")
	ErrLocked                        = errors.New("session locked")
	ErrTampered                      = errors.New("tamper detected")
	ErrUnknownRole                   = errors.New("unknown role")
	ErrCredentialsNotProvisioned     = errors.New("credentials not provisioned")
	ErrorIncorrectPinFormat          = errors.New("incorrect pin format")
	ErrorCredentialStoreInconsistent = errors.New("credential store inconsistent")
)

var (
	// Messaging errors.
	ErrEmptyMessage   = errors.New("empty message")
	ErrUnknownPayload = errors.New("unknown payload kind")
)
