package crypto

import "fmt"

// Sizes are in bytes.
const (
	// KeySize is the ChaCha20-Poly1305 key length.
	KeySize = 32

	// NonceSize is the ChaCha20-Poly1305 nonce (IV) length.
	NonceSize = 12

	// TagSize is the Poly1305 authentication tag length.
	TagSize = 16

	// DefaultReplayWindow is the number of trailing sequence numbers the
	// replay guard remembers when no explicit width is configured.
	DefaultReplayWindow = 64

	// MaxReplayWindow bounds the configurable replay window width.
	MaxReplayWindow = 4096
)

// Mode is the crypto mode code carried in every envelope header.
type Mode int

const (
	// ModeUndefined is never valid on the wire.
	ModeUndefined Mode = 0
	// ModeNone carries the payload in plaintext.
	ModeNone Mode = 1
	// ModeChaCha20Poly1305 seals the payload with ChaCha20-Poly1305.
	ModeChaCha20Poly1305 Mode = 2

	// modeLast is one past the highest known code.
	modeLast Mode = 3
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeUndefined:
		return "undefined"
	case ModeNone:
		return "none"
	case ModeChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether the mode may appear on the wire.
func (m Mode) Valid() bool {
	return m == ModeNone || m == ModeChaCha20Poly1305
}

// Overhead returns the number of bytes the mode adds after the header.
func (m Mode) Overhead() int {
	if m == ModeChaCha20Poly1305 {
		return TagSize
	}
	return 0
}

// ModeFromInt maps a decoded wire code onto the enumeration.
// Codes outside the known range map to ModeUndefined.
func ModeFromInt(code int64) Mode {
	if code < int64(ModeUndefined) || code >= int64(modeLast) {
		return ModeUndefined
	}
	return Mode(code)
}

// ParseMode accepts the names printed by Mode.String.
func ParseMode(name string) (Mode, error) {
	for m := ModeNone; m < modeLast; m++ {
		if m.String() == name {
			return m, nil
		}
	}
	return ModeUndefined, fmt.Errorf("%w: %q", ErrUnsupportedMode, name)
}
