package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/afvoice/audio"
	"github.com/opd-ai/afvoice/event"
	"github.com/sirupsen/logrus"
)

// State is the bridge lifecycle state.
type State int

const (
	// StateClosed means no stream is open.
	StateClosed State = iota
	// StateOpen means the configured streams are running.
	StateOpen
)

// String returns the state name.
func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// StateChange is raised on OnStateChange after every transition.
type StateChange struct {
	From State
	To   State
}

// Config selects devices and the pipeline format.
type Config struct {
	API          API
	InputDevice  string // name or id; empty selects the default device
	OutputDevice string
	StreamName   string

	DisableInput  bool
	DisableOutput bool

	// SampleRate and Channels describe what the source and sink exchange.
	// Hardware with a different channel count is remixed at the bridge.
	SampleRate int
	Channels   int

	// PreferredFrames is the playback period the bridge aims for when the
	// driver leaves it a choice.
	PreferredFrames int

	// MaxCallbackFrames sizes the scratch buffers. Larger driver requests
	// are served in several chunks.
	MaxCallbackFrames int
}

// DefaultConfig returns a mono 48 kHz configuration on the default devices.
func DefaultConfig() Config {
	return Config{
		API:               DefaultAPI,
		StreamName:        "afvoice",
		SampleRate:        audio.DefaultSampleRate,
		Channels:          1,
		PreferredFrames:   audio.DefaultFrameSize / 2,
		MaxCallbackFrames: 8192,
	}
}

// Stats counts callback activity. Underruns and overflows are glitches, not
// errors.
type Stats struct {
	CaptureCallbacks  uint64
	PlaybackCallbacks uint64
	CapturedFrames    uint64
	PlayedFrames      uint64
	SilenceFills      uint64 // playback chunks padded with silence
	Underruns         uint64 // playback chunks whose source failed
	Overflows         uint64 // capture chunks the sink could not hold
}

type sourceBox struct{ src audio.SampleSource }

type sinkBox struct{ sink audio.SampleSink }

// Bridge owns one input and one output stream and calls a SampleSink from
// the capture callback and a SampleSource from the playback callback.
//
// Open and Close run on the control goroutine. The callbacks never lock,
// allocate or block; the source and sink are swapped through atomic
// pointers so SetSource and SetSink are safe while streams run.
type Bridge struct {
	backend Backend
	cfg     Config

	mu     sync.Mutex
	state  State
	input  Stream
	output Stream

	// Written by Open before Start, read only by callbacks.
	inChannels     int
	outChannels    int
	captureScratch []int16
	playScratch    []int16

	source atomic.Pointer[sourceBox]
	sink   atomic.Pointer[sinkBox]

	captureCallbacks  atomic.Uint64
	playbackCallbacks atomic.Uint64
	capturedFrames    atomic.Uint64
	playedFrames      atomic.Uint64
	silenceFills      atomic.Uint64
	underruns         atomic.Uint64
	overflows         atomic.Uint64

	// OnStateChange observers run on the goroutine calling Open or Close.
	OnStateChange event.Chain[StateChange]
}

// New creates a closed bridge.
func New(backend Backend, cfg Config) (*Bridge, error) {
	if backend == nil {
		return nil, errors.New("nil audio backend")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", cfg.Channels)
	}
	if cfg.MaxCallbackFrames <= 0 {
		cfg.MaxCallbackFrames = DefaultConfig().MaxCallbackFrames
	}
	if cfg.PreferredFrames <= 0 {
		cfg.PreferredFrames = DefaultConfig().PreferredFrames
	}

	return &Bridge{backend: backend, cfg: cfg}, nil
}

// SetSource installs the playback source. nil plays silence.
func (b *Bridge) SetSource(src audio.SampleSource) {
	if src == nil {
		b.source.Store(nil)
		return
	}
	b.source.Store(&sourceBox{src: src})
}

// SetSink installs the capture sink. nil discards captured audio.
func (b *Bridge) SetSink(sink audio.SampleSink) {
	if sink == nil {
		b.sink.Store(nil)
		return
	}
	b.sink.Store(&sinkBox{sink: sink})
}

// IsOpen reports whether the streams are running.
func (b *Bridge) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen
}

// Open resolves and starts the configured streams. On failure nothing is
// left open.
func (b *Bridge) Open() error {
	b.mu.Lock()
	if b.state == StateOpen {
		b.mu.Unlock()
		return ErrAlreadyOpen
	}

	logrus.WithFields(logrus.Fields{
		"function": "Bridge.Open",
		"api":      b.cfg.API,
		"input":    b.cfg.InputDevice,
		"output":   b.cfg.OutputDevice,
	}).Info("Opening audio streams")

	if err := b.openLocked(); err != nil {
		b.closeStreamsLocked()
		b.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Bridge.Open",
			"error":    err.Error(),
		}).Error("Failed to open audio streams")
		return err
	}
	b.state = StateOpen
	b.mu.Unlock()

	b.OnStateChange.Invoke(StateChange{From: StateClosed, To: StateOpen})
	return nil
}

func (b *Bridge) openLocked() error {
	params := StreamParams{
		Name:   b.cfg.StreamName,
		Format: Format{SampleRate: b.cfg.SampleRate, Channels: b.cfg.Channels},
	}
	scratch := b.cfg.MaxCallbackFrames * b.cfg.Channels

	if !b.cfg.DisableOutput {
		devices, err := b.backend.OutputDevices(b.cfg.API)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		id, ok := resolveDevice(devices, b.cfg.OutputDevice)
		if !ok {
			return fmt.Errorf("%w: no output device %q", ErrDeviceUnavailable, b.cfg.OutputDevice)
		}
		stream, err := b.backend.OpenOutput(b.cfg.API, id, params, b)
		if err != nil {
			return fmt.Errorf("%w: output %q: %w", ErrDeviceUnavailable, b.cfg.OutputDevice, err)
		}
		b.output = stream
		if err := b.checkFormat(stream.Format()); err != nil {
			return err
		}
		b.outChannels = stream.Format().Channels
		b.playScratch = make([]int16, scratch)
	}

	if !b.cfg.DisableInput {
		devices, err := b.backend.InputDevices(b.cfg.API)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		id, ok := resolveDevice(devices, b.cfg.InputDevice)
		if !ok {
			return fmt.Errorf("%w: no input device %q", ErrDeviceUnavailable, b.cfg.InputDevice)
		}
		stream, err := b.backend.OpenInput(b.cfg.API, id, params, b)
		if err != nil {
			return fmt.Errorf("%w: input %q: %w", ErrDeviceUnavailable, b.cfg.InputDevice, err)
		}
		b.input = stream
		if err := b.checkFormat(stream.Format()); err != nil {
			return err
		}
		b.inChannels = stream.Format().Channels
		b.captureScratch = make([]int16, scratch)
	}

	if b.output != nil {
		if err := b.output.Start(); err != nil {
			return fmt.Errorf("%w: start output: %w", ErrDeviceUnavailable, err)
		}
	}
	if b.input != nil {
		if err := b.input.Start(); err != nil {
			return fmt.Errorf("%w: start input: %w", ErrDeviceUnavailable, err)
		}
	}
	return nil
}

func (b *Bridge) checkFormat(got Format) error {
	if got.SampleRate != b.cfg.SampleRate || got.Channels <= 0 {
		return fmt.Errorf("%w: device granted %d Hz x %d channels, need %d Hz",
			ErrDeviceUnavailable, got.SampleRate, got.Channels, b.cfg.SampleRate)
	}
	return nil
}

// Close stops both streams. It is safe to call at any time, repeatedly.
func (b *Bridge) Close() {
	b.mu.Lock()
	was := b.state
	b.closeStreamsLocked()
	b.state = StateClosed
	b.mu.Unlock()

	if was == StateOpen {
		logrus.WithFields(logrus.Fields{
			"function": "Bridge.Close",
		}).Info("Closed audio streams")
		b.OnStateChange.Invoke(StateChange{From: StateOpen, To: StateClosed})
	}
}

func (b *Bridge) closeStreamsLocked() {
	for _, s := range []*Stream{&b.input, &b.output} {
		if *s == nil {
			continue
		}
		if err := (*s).Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Bridge.Close",
				"error":    err.Error(),
			}).Warn("Error closing audio stream")
		}
		*s = nil
	}
}

// InputFormat reports the granted capture format.
func (b *Bridge) InputFormat() (Format, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.input == nil {
		return Format{}, ErrNotOpen
	}
	return b.input.Format(), nil
}

// OutputFormat reports the granted playback format.
func (b *Bridge) OutputFormat() (Format, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.output == nil {
		return Format{}, ErrNotOpen
	}
	return b.output.Format(), nil
}

// OnCapture remixes captured frames to the pipeline layout and hands them
// to the sink in scratch-sized chunks.
func (b *Bridge) OnCapture(samples []int16) {
	b.captureCallbacks.Add(1)
	hwCh := b.inChannels
	if hwCh == 0 {
		return
	}
	frames := len(samples) / hwCh
	b.capturedFrames.Add(uint64(frames))

	box := b.sink.Load()
	if box == nil {
		return
	}

	pipeCh := b.cfg.Channels
	chunk := len(b.captureScratch) / pipeCh
	for done := 0; done < frames; {
		n := frames - done
		if n > chunk {
			n = chunk
		}
		buf := b.captureScratch[:n*pipeCh]
		remix(buf, pipeCh, samples[done*hwCh:], hwCh, n)
		if box.sink.PutFrame(buf) == audio.SinkOverflow {
			b.overflows.Add(1)
		}
		done += n
	}
}

// OnPlayback fills out from the source, remixing to the stream layout.
func (b *Bridge) OnPlayback(out []int16, minFrames, maxFrames int) int {
	b.playbackCallbacks.Add(1)
	hwCh := b.outChannels
	if hwCh == 0 {
		return 0
	}
	frames := optimumFrameCount(b.cfg.PreferredFrames, minFrames, maxFrames)

	box := b.source.Load()
	if box == nil {
		audio.Silence(out[:frames*hwCh])
		b.playedFrames.Add(uint64(frames))
		return frames
	}

	pipeCh := b.cfg.Channels
	chunk := len(b.playScratch) / pipeCh
	for done := 0; done < frames; {
		n := frames - done
		if n > chunk {
			n = chunk
		}
		buf := b.playScratch[:n*pipeCh]
		switch box.src.GetFrame(buf) {
		case audio.SourceSilenceInserted:
			b.silenceFills.Add(1)
		case audio.SourceUnderrun:
			b.underruns.Add(1)
		case audio.SourceError:
			audio.Silence(buf)
			b.underruns.Add(1)
		}
		remix(out[done*hwCh:], hwCh, buf, pipeCh, n)
		done += n
	}
	b.playedFrames.Add(uint64(frames))
	return frames
}

// Stats returns a snapshot of the callback counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		CaptureCallbacks:  b.captureCallbacks.Load(),
		PlaybackCallbacks: b.playbackCallbacks.Load(),
		CapturedFrames:    b.capturedFrames.Load(),
		PlayedFrames:      b.playedFrames.Load(),
		SilenceFills:      b.silenceFills.Load(),
		Underruns:         b.underruns.Load(),
		Overflows:         b.overflows.Load(),
	}
}
