package common

// PinLength is the exact number of characters a vault PIN must have.
const PinLength = 4

// Metadata keys. Role-qualified keys are built with the role name appended,
// e.g. "aegis_pin_USER_A".
const (
	PinKeyPrefix        = "aegis_pin_"
	WrappedKeyKeyPrefix = "aegis_wrapped_key_"
)
