package audio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// ErrEmptyPayload indicates a decoder was handed no data.
var ErrEmptyPayload = errors.New("empty audio payload")

// Encoder turns one codec frame of PCM into a payload. It runs on the
// transmit goroutine, never on a device callback.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// Decoder turns a payload back into PCM at the pipeline rate, appending to
// dst. It runs on the receive goroutine.
type Decoder interface {
	Decode(dst []int16, payload []byte) ([]int16, error)
}

// PCMEncoder serializes samples as little-endian int16 without compression.
type PCMEncoder struct{}

// Encode converts pcm to little-endian bytes.
func (PCMEncoder) Encode(pcm []int16) ([]byte, error) {
	data := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data, nil
}

// PCMDecoder is the inverse of PCMEncoder.
type PCMDecoder struct{}

// Decode converts little-endian bytes to samples.
func (PCMDecoder) Decode(dst []int16, payload []byte) ([]int16, error) {
	if len(payload) == 0 {
		return dst, ErrEmptyPayload
	}
	if len(payload)%2 != 0 {
		return dst, fmt.Errorf("pcm payload length %d is odd", len(payload))
	}
	for i := 0; i+1 < len(payload); i += 2 {
		dst = append(dst, int16(binary.LittleEndian.Uint16(payload[i:])))
	}
	return dst, nil
}

// opusMaxFrameSamples bounds one decoded Opus packet (120 ms at 48 kHz, stereo).
const opusMaxFrameSamples = 5760 * 2

// OpusDecoder decodes Opus packets with pion/opus and resamples the decoded
// bandwidth to the pipeline rate. Decoding goes through mono; a stereo
// pipeline gets the mono signal on both channels.
type OpusDecoder struct {
	decoder        opus.Decoder
	outputRate     uint32
	outputChannels int
	resampler      *Resampler
	raw            []byte
	mono           []int16
	resampled      []int16
}

// NewOpusDecoder creates a decoder producing interleaved PCM at outputRate
// with outputChannels (1 or 2) channels.
func NewOpusDecoder(outputRate uint32, outputChannels int) (*OpusDecoder, error) {
	if outputRate == 0 {
		return nil, fmt.Errorf("invalid output rate %d", outputRate)
	}
	if outputChannels != 1 && outputChannels != 2 {
		return nil, fmt.Errorf("invalid output channel count %d", outputChannels)
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewOpusDecoder",
		"output_rate":     outputRate,
		"output_channels": outputChannels,
	}).Info("Creating Opus decoder")

	return &OpusDecoder{
		decoder:        opus.NewDecoder(),
		outputRate:     outputRate,
		outputChannels: outputChannels,
		raw:            make([]byte, opusMaxFrameSamples*2),
		mono:           make([]int16, 0, opusMaxFrameSamples),
	}, nil
}

// Decode decodes one Opus packet and appends PCM at the output rate and
// channel count.
func (d *OpusDecoder) Decode(dst []int16, payload []byte) ([]int16, error) {
	if len(payload) == 0 {
		return dst, ErrEmptyPayload
	}

	bandwidth, isStereo, err := d.decoder.Decode(payload, d.raw)
	if err != nil {
		return dst, fmt.Errorf("opus decode failed: %w", err)
	}

	rate := uint32(bandwidth.SampleRate())
	perChannel, err := opusPacketSamples(payload, rate)
	if err != nil {
		return dst, err
	}
	channels := 1
	if isStereo {
		channels = 2
	}
	if perChannel*channels*2 > len(d.raw) {
		return dst, fmt.Errorf("opus packet of %d samples exceeds decode buffer", perChannel)
	}

	d.mono = d.mono[:0]
	for i := 0; i < perChannel; i++ {
		if channels == 1 {
			d.mono = append(d.mono, int16(binary.LittleEndian.Uint16(d.raw[i*2:])))
			continue
		}
		l := int32(int16(binary.LittleEndian.Uint16(d.raw[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(d.raw[i*4+2:])))
		d.mono = append(d.mono, int16((l+r)/2))
	}

	return d.emit(dst, d.mono, rate)
}

// emit resamples mono PCM decoded at rate and appends it to dst in the
// output layout.
func (d *OpusDecoder) emit(dst, mono []int16, rate uint32) ([]int16, error) {
	if d.resampler == nil || d.resampler.InputRate() != rate {
		var err error
		if d.resampler, err = NewResampler(rate, d.outputRate); err != nil {
			return dst, err
		}
	}
	if d.outputChannels == 1 {
		return d.resampler.Resample(dst, mono), nil
	}

	d.resampled = d.resampler.Resample(d.resampled[:0], mono)
	for _, s := range d.resampled {
		dst = append(dst, s, s)
	}
	return dst, nil
}

// opusFrameDurations lists SILK/hybrid/CELT frame durations in units of 2.5 ms,
// indexed by TOC configuration number.
var opusFrameDurations = [32]int{
	4, 8, 16, 24, 4, 8, 16, 24, 4, 8, 16, 24, // SILK NB/MB/WB: 10/20/40/60 ms
	4, 8, 4, 8, // hybrid SWB/FB: 10/20 ms
	1, 2, 4, 8, 1, 2, 4, 8, 1, 2, 4, 8, 1, 2, 4, 8, // CELT: 2.5/5/10/20 ms
}

// opusPacketSamples derives the per-channel sample count of a packet at rate
// from its TOC byte.
func opusPacketSamples(packet []byte, rate uint32) (int, error) {
	toc := packet[0]
	frames := 1
	switch toc & 0x03 {
	case 1, 2:
		frames = 2
	case 3:
		if len(packet) < 2 {
			return 0, errors.New("opus packet missing frame count")
		}
		frames = int(packet[1] & 0x3f)
	}
	units := opusFrameDurations[toc>>3] * frames // 2.5 ms units
	return int(rate) * units / 400, nil
}
