package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		header Header
	}{
		{name: "aead", header: Header{ChannelTag: "ABC", Sequence: 1, Mode: ModeChaCha20Poly1305}},
		{name: "none", header: Header{ChannelTag: "voice", Sequence: 42, Mode: ModeNone}},
		{name: "undefined", header: Header{ChannelTag: "x", Sequence: 0, Mode: ModeUndefined}},
		{name: "empty_tag", header: Header{ChannelTag: "", Sequence: 7, Mode: ModeNone}},
		{name: "max_sequence", header: Header{ChannelTag: "ABC", Sequence: ^uint64(0), Mode: ModeChaCha20Poly1305}},
		{name: "long_tag", header: Header{ChannelTag: strings.Repeat("t", 200), Sequence: 300, Mode: ModeNone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := EncodeHeader(tt.header)
			require.NoError(t, err)

			got, n, err := DecodeHeader(b)
			require.NoError(t, err)
			assert.Equal(t, tt.header, got)
			assert.Equal(t, len(b), n)
		})
	}
}

func TestHeaderIsThreeElementArray(t *testing.T) {
	b, err := EncodeHeader(Header{ChannelTag: "ABC", Sequence: 5, Mode: ModeChaCha20Poly1305})
	require.NoError(t, err)

	var fields []interface{}
	require.NoError(t, msgpack.Unmarshal(b, &fields))
	require.Len(t, fields, 3)
	assert.Equal(t, "ABC", fields[0])
}

func TestDecodeHeaderLeavesTrailingBytes(t *testing.T) {
	b, err := EncodeHeader(Header{ChannelTag: "ABC", Sequence: 9, Mode: ModeNone})
	require.NoError(t, err)
	datagram := append(append([]byte{}, b...), []byte("payload")...)

	h, n, err := DecodeHeader(datagram)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), h.Sequence)
	assert.Equal(t, []byte("payload"), datagram[n:])
}

func encodeRaw(t *testing.T, fields ...interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	require.NoError(t, enc.EncodeArrayLen(len(fields)))
	for _, f := range fields {
		require.NoError(t, enc.Encode(f))
	}
	return buf.Bytes()
}

func TestDecodeHeaderMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "not_array", data: []byte{0xa3, 'A', 'B', 'C'}},
		{name: "two_fields", data: encodeRaw(t, "ABC", uint64(1))},
		{name: "four_fields", data: encodeRaw(t, "ABC", uint64(1), 2, 0)},
		{name: "tag_not_string", data: encodeRaw(t, 12, uint64(1), 2)},
		{name: "sequence_string", data: encodeRaw(t, "ABC", "one", 2)},
		{name: "negative_sequence", data: encodeRaw(t, "ABC", int64(-4), 2)},
		{name: "mode_string", data: encodeRaw(t, "ABC", uint64(1), "aead")},
		{name: "truncated", data: encodeRaw(t, "ABC", uint64(1), 2)[:3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeHeader(tt.data)
			assert.ErrorIs(t, err, ErrMalformedHeader)
		})
	}
}

func TestDecodeHeaderUnknownModeIsUndefined(t *testing.T) {
	for _, code := range []int64{3, 99, -1} {
		h, _, err := DecodeHeader(encodeRaw(t, "ABC", uint64(1), code))
		assert.ErrorIs(t, err, ErrMalformedHeader)
		assert.Equal(t, ModeUndefined, h.Mode)
	}
}

func TestEncodeHeaderRejectsLongTag(t *testing.T) {
	_, err := EncodeHeader(Header{ChannelTag: strings.Repeat("x", 256)})
	assert.Error(t, err)
}

func TestModeFromInt(t *testing.T) {
	tests := []struct {
		code int64
		want Mode
	}{
		{-1, ModeUndefined},
		{0, ModeUndefined},
		{1, ModeNone},
		{2, ModeChaCha20Poly1305},
		{3, ModeUndefined},
		{99, ModeUndefined},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ModeFromInt(tt.code), "code %d", tt.code)
	}
	assert.False(t, ModeUndefined.Valid())
	assert.True(t, ModeNone.Valid())
	assert.Equal(t, TagSize, ModeChaCha20Poly1305.Overhead())
	assert.Equal(t, 0, ModeNone.Overhead())
	assert.Equal(t, "mode(7)", Mode(7).String())
}

func TestAEADHeaderDecodesMode(t *testing.T) {
	b, err := EncodeHeader(Header{ChannelTag: "ABC", Sequence: 1, Mode: ModeChaCha20Poly1305})
	require.NoError(t, err)

	h, _, err := DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, ModeChaCha20Poly1305, h.Mode)
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeNone, ModeChaCha20Poly1305} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseMode("undefined")
	assert.ErrorIs(t, err, ErrUnsupportedMode)
	_, err = ParseMode("aes")
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}
