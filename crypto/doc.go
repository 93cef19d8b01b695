// Package crypto implements the encrypted datagram envelope used to carry
// voice frames between clients.
//
// Every datagram is a MessagePack header array followed by the payload:
//
//	[channelTag, sequence, mode] || ciphertext || tag   (ModeChaCha20Poly1305)
//	[channelTag, sequence, mode] || payload             (ModeNone)
//
// # Core Types
//
//   - [Header]: the three-field envelope prefix; see [EncodeHeader] and [DecodeHeader]
//   - [Cipher]: stateless ChaCha20-Poly1305 engine with sequence-derived nonces
//   - [SequenceGuard]: sliding bitfield replay window of configurable width
//   - [KeyRing]: current/previous key pair with a timed grace window
//   - [Channel]: composes the above into EncodeDatagram / DecodeDatagram
//   - [ChannelSet]: routes datagrams for several channels sharing one socket
//
// # Datagram Processing
//
//	tx, _ := crypto.NewChannel(crypto.ChannelConfig{Tag: "ABC", Mode: crypto.ModeChaCha20Poly1305, Keys: keys})
//	datagram, _ := tx.EncodeDatagram(opusFrame)
//
//	got, err := rx.DecodeDatagram(datagram)
//	switch {
//	case errors.Is(err, crypto.ErrReplay):         // expected under jitter, drop quietly
//	case errors.Is(err, crypto.ErrAuthFailure):    // raised on rx.OnAuthFailure too
//	case errors.Is(err, crypto.ErrMalformedHeader): // drop
//	}
//
// Decoding checks the replay window before doing any crypto work and marks
// the sequence as seen only after the tag verifies.
//
// # Nonces
//
// The 12-byte nonce is four zero bytes followed by the little-endian sequence
// number. Each channel hands out strictly increasing sequences per key, so a
// nonce is never reused even when datagrams are reordered or duplicated. The
// header bytes are authenticated as associated data.
//
// # Key Rotation
//
// Keys come from the session collaborator, optionally expanded with
// [DeriveChannelKeys]. [Channel.RotateKeys] moves the receive ring into the
// rotating state; datagrams sealed under the previous key keep decrypting
// until the grace deadline. Rotation swaps an immutable snapshot atomically,
// so concurrent decodes never observe a half-rotated ring.
package crypto
