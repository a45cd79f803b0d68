package device

import "errors"

// Common errors returned by the device registry.
var (
	// ErrDeviceNotFound is returned when a device does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a UniqueID that is
	// already taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device fields fail validation.
	ErrInvalidDevice = errors.New("device: invalid device")
)
