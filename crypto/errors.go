package crypto

import "errors"

// Sentinel errors for datagram processing.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrMalformedHeader indicates the envelope header did not parse as
	// exactly three fields of the expected types, or carried an unknown mode.
	ErrMalformedHeader = errors.New("malformed envelope header")

	// ErrAuthFailure indicates AEAD tag verification failed under every
	// candidate key.
	ErrAuthFailure = errors.New("datagram authentication failed")

	// ErrReplay indicates the sequence number was already accepted or fell
	// behind the replay window.
	ErrReplay = errors.New("datagram replayed or too old")

	// ErrUnsupportedMode indicates a mode the channel is not configured for.
	ErrUnsupportedMode = errors.New("unsupported crypto mode")

	// ErrSequenceExhausted indicates the transmit counter reached its maximum.
	ErrSequenceExhausted = errors.New("transmit sequence exhausted")

	// ErrInvalidKey indicates key material of the wrong length.
	ErrInvalidKey = errors.New("invalid key material")

	// ErrChannelTagMismatch indicates a datagram addressed to a different channel.
	ErrChannelTagMismatch = errors.New("channel tag mismatch")

	// ErrKeyRoleConflict indicates the peer seals with this endpoint's own
	// transmit key, so both ends were configured with the same key role.
	// The channel refuses to transmit once it is detected.
	ErrKeyRoleConflict = errors.New("peer uses this endpoint's transmit key")
)
