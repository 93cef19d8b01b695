// Package limits provides centralized size constants and validation functions
// for the encrypted voice datagram protocol.
//
// # Datagram Ceiling
//
// Every datagram, and every buffer reconstructed from one, is bounded by
// MaxDatagramSize (65536 bytes). The receive loop sizes its read buffer from
// this constant and the crypto channel refuses to parse anything larger:
//
//	if err := limits.ValidateDatagram(b); err != nil {
//	    // drop: ErrMessageEmpty or ErrMessageTooLarge
//	}
//
// For payload budgeting on the send side, MaxPayloadSize subtracts the encoded
// header length and the AEAD tag overhead from the ceiling.
//
// # Error Types
//
//   - ErrMessageEmpty: Returned when an empty or nil datagram is provided
//   - ErrMessageTooLarge: Returned when a datagram exceeds the specified limit
package limits
