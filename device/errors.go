package device

import "errors"

var (
	// ErrDeviceUnavailable is returned by Open when no device matches the
	// configured name or id, or the device refuses the requested format.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrAlreadyOpen is returned by Open on an open bridge.
	ErrAlreadyOpen = errors.New("audio bridge already open")

	// ErrNotOpen is returned by queries that need an open stream.
	ErrNotOpen = errors.New("audio bridge not open")
)
