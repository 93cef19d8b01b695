package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Resampler converts a mono sample stream between rates using linear
// interpolation. It carries the last input sample and fractional position
// across calls so consecutive frames join without clicks.
type Resampler struct {
	inputRate  uint32
	outputRate uint32
	step       float64 // input samples advanced per output sample
	position   float64 // fractional read position relative to the current input
	last       int16
	primed     bool
}

// NewResampler creates a resampler from inputRate to outputRate.
func NewResampler(inputRate, outputRate uint32) (*Resampler, error) {
	if inputRate == 0 || outputRate == 0 {
		return nil, fmt.Errorf("invalid sample rates: input=%d, output=%d", inputRate, outputRate)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewResampler",
		"input_rate":  inputRate,
		"output_rate": outputRate,
	}).Debug("Creating resampler")

	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		step:       float64(inputRate) / float64(outputRate),
	}, nil
}

// InputRate returns the source rate.
func (r *Resampler) InputRate() uint32 { return r.inputRate }

// OutputRate returns the destination rate.
func (r *Resampler) OutputRate() uint32 { return r.outputRate }

// Resample appends the converted samples for input to dst and returns it.
func (r *Resampler) Resample(dst, input []int16) []int16 {
	if len(input) == 0 {
		return dst
	}
	if r.inputRate == r.outputRate {
		return append(dst, input...)
	}
	if !r.primed {
		r.last = input[0]
		r.primed = true
	}

	// Position -1 refers to r.last, the final sample of the previous call.
	for {
		idx := int(r.position)
		if r.position < 0 {
			idx = -1
		}
		if idx+1 >= len(input) {
			break
		}
		frac := r.position - float64(idx)

		var a int16
		if idx < 0 {
			a = r.last
		} else {
			a = input[idx]
		}
		b := input[idx+1]
		dst = append(dst, int16(float64(a)+(float64(b)-float64(a))*frac))
		r.position += r.step
	}

	r.position -= float64(len(input))
	r.last = input[len(input)-1]
	return dst
}

// Reset forgets stream state.
func (r *Resampler) Reset() {
	r.position = 0
	r.last = 0
	r.primed = false
}
