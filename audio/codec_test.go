package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMCodecRoundTrip(t *testing.T) {
	pcm := []int16{0, 1, -1, 32767, -32768, 1234}

	payload, err := PCMEncoder{}.Encode(pcm)
	require.NoError(t, err)
	assert.Len(t, payload, len(pcm)*2)
	assert.Equal(t, []byte{0x01, 0x00}, payload[2:4], "little-endian")

	out, err := PCMDecoder{}.Decode(nil, payload)
	require.NoError(t, err)
	assert.Equal(t, pcm, out)
}

func TestPCMDecoderRejects(t *testing.T) {
	_, err := PCMDecoder{}.Decode(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = PCMDecoder{}.Decode(nil, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestOpusPacketSamples(t *testing.T) {
	tests := []struct {
		name     string
		packet   []byte
		rate     uint32
		expected int
	}{
		{"silk_nb_20ms", []byte{1 << 3}, 8000, 160},
		{"silk_wb_60ms", []byte{11 << 3}, 16000, 960},
		{"silk_wb_20ms_two_frames", []byte{9<<3 | 1}, 16000, 640},
		{"celt_fb_20ms", []byte{31 << 3}, 48000, 960},
		{"celt_fb_2_5ms", []byte{28 << 3}, 48000, 120},
		{"code3_three_frames", []byte{1<<3 | 3, 3}, 8000, 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := opusPacketSamples(tt.packet, tt.rate)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}

	_, err := opusPacketSamples([]byte{3}, 8000)
	assert.Error(t, err)
}

func TestOpusDecoderRejects(t *testing.T) {
	_, err := NewOpusDecoder(0, 1)
	assert.Error(t, err)
	_, err = NewOpusDecoder(DefaultSampleRate, 0)
	assert.Error(t, err)
	_, err = NewOpusDecoder(DefaultSampleRate, 3)
	assert.Error(t, err)

	dec, err := NewOpusDecoder(DefaultSampleRate, 1)
	require.NoError(t, err)
	_, err = dec.Decode(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestOpusDecoderOutputLayout(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		expected []int16
	}{
		{"mono", 1, []int16{5, -7, 9}},
		{"stereo", 2, []int16{5, 5, -7, -7, 9, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := NewOpusDecoder(DefaultSampleRate, tt.channels)
			require.NoError(t, err)

			out, err := dec.emit([]int16{1}, []int16{5, -7, 9}, DefaultSampleRate)
			require.NoError(t, err)
			assert.Equal(t, append([]int16{1}, tt.expected...), out)
		})
	}
}
