package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxDatagramSize is the largest on-wire datagram the transport accepts (64 KiB).
	// It bounds receive buffers and every reconstructed envelope.
	MaxDatagramSize = 65536

	// MaxChannelTagLength bounds the channel tag carried in every envelope header.
	// Tags are short identifiers; anything longer is treated as a malformed header.
	MaxChannelTagLength = 255
)

var (
	// ErrMessageEmpty indicates an empty datagram or payload was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates a datagram exceeds the permitted size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateDatagram validates a complete on-wire datagram against MaxDatagramSize.
// Oversized datagrams must be rejected before any header parsing takes place.
func ValidateDatagram(datagram []byte) error {
	if len(datagram) == 0 {
		return ErrMessageEmpty
	}
	if len(datagram) > MaxDatagramSize {
		return fmt.Errorf("%w: datagram size %d exceeds limit %d", ErrMessageTooLarge, len(datagram), MaxDatagramSize)
	}
	return nil
}

// MaxPayloadSize returns the largest payload that still fits in a datagram once
// the given header length and per-mode overhead are accounted for.
func MaxPayloadSize(headerLen, overhead int) int {
	n := MaxDatagramSize - headerLen - overhead
	if n < 0 {
		return 0
	}
	return n
}
