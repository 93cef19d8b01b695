package crypto

import (
	"bytes"
	"fmt"

	"github.com/opd-ai/afvoice/limits"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// headerFieldCount is part of the wire contract and must not change.
const headerFieldCount = 3

// Header is the plaintext envelope prefix of every datagram.
// On the wire it is a MessagePack array: [channelTag, sequence, mode].
type Header struct {
	ChannelTag string
	Sequence   uint64
	Mode       Mode
}

// EncodeHeader serializes the header as a three element MessagePack array.
func EncodeHeader(h Header) ([]byte, error) {
	if len(h.ChannelTag) > limits.MaxChannelTagLength {
		return nil, fmt.Errorf("channel tag length %d exceeds %d", len(h.ChannelTag), limits.MaxChannelTagLength)
	}

	var buf bytes.Buffer
	buf.Grow(len(h.ChannelTag) + 16)
	enc := msgpack.NewEncoder(&buf)

	if err := enc.EncodeArrayLen(headerFieldCount); err != nil {
		return nil, err
	}
	if err := enc.EncodeString(h.ChannelTag); err != nil {
		return nil, err
	}
	if err := enc.EncodeUint(h.Sequence); err != nil {
		return nil, err
	}
	if err := enc.EncodeInt(int64(h.Mode)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeHeader parses a header from the front of b and returns it together
// with the number of bytes consumed. Trailing bytes are left for the caller.
//
// A mode code outside the enumeration yields a header whose Mode is
// ModeUndefined alongside ErrMalformedHeader.
func DecodeHeader(b []byte) (Header, int, error) {
	r := bytes.NewReader(b)
	dec := msgpack.NewDecoder(r)

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return Header{}, 0, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if n != headerFieldCount {
		return Header{}, 0, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedHeader, headerFieldCount, n)
	}

	var h Header

	if c, err := dec.PeekCode(); err != nil || !isStringCode(c) {
		return Header{}, 0, fmt.Errorf("%w: channel tag is not a string", ErrMalformedHeader)
	}
	if h.ChannelTag, err = dec.DecodeString(); err != nil {
		return Header{}, 0, fmt.Errorf("%w: channel tag: %v", ErrMalformedHeader, err)
	}
	if len(h.ChannelTag) > limits.MaxChannelTagLength {
		return Header{}, 0, fmt.Errorf("%w: channel tag too long", ErrMalformedHeader)
	}

	c, err := dec.PeekCode()
	if err != nil || !isIntCode(c) {
		return Header{}, 0, fmt.Errorf("%w: sequence is not an integer", ErrMalformedHeader)
	}
	if isSignedCode(c) {
		v, err := dec.DecodeInt64()
		if err != nil || v < 0 {
			return Header{}, 0, fmt.Errorf("%w: sequence is negative", ErrMalformedHeader)
		}
		h.Sequence = uint64(v)
	} else if h.Sequence, err = dec.DecodeUint64(); err != nil {
		return Header{}, 0, fmt.Errorf("%w: sequence: %v", ErrMalformedHeader, err)
	}

	if c, err := dec.PeekCode(); err != nil || !isIntCode(c) {
		return Header{}, 0, fmt.Errorf("%w: mode is not an integer", ErrMalformedHeader)
	}
	code, err := dec.DecodeInt64()
	if err != nil {
		return Header{}, 0, fmt.Errorf("%w: mode: %v", ErrMalformedHeader, err)
	}
	h.Mode = ModeFromInt(code)
	consumed := len(b) - r.Len()
	if int64(h.Mode) != code {
		return h, consumed, fmt.Errorf("%w: unknown mode %d", ErrMalformedHeader, code)
	}

	return h, consumed, nil
}

func isStringCode(c byte) bool {
	return (c >= msgpcode.FixedStrLow && c <= msgpcode.FixedStrHigh) ||
		c == msgpcode.Str8 || c == msgpcode.Str16 || c == msgpcode.Str32
}

func isSignedCode(c byte) bool {
	return c >= msgpcode.NegFixedNumLow ||
		c == msgpcode.Int8 || c == msgpcode.Int16 || c == msgpcode.Int32 || c == msgpcode.Int64
}

func isIntCode(c byte) bool {
	return c <= msgpcode.PosFixedNumHigh || isSignedCode(c) ||
		c == msgpcode.Uint8 || c == msgpcode.Uint16 || c == msgpcode.Uint32 || c == msgpcode.Uint64
}
