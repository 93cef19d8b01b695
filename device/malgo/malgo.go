// Package malgo implements device.Backend over miniaudio through
// github.com/gen2brain/malgo.
package malgo

import (
	"fmt"
	"sync"
	"unsafe"

	ma "github.com/gen2brain/malgo"
	"github.com/opd-ai/afvoice/device"
	"github.com/sirupsen/logrus"
)

var apiNames = map[device.API]string{
	device.API(ma.BackendWasapi):     "WASAPI",
	device.API(ma.BackendDsound):     "DirectSound",
	device.API(ma.BackendWinmm):      "WinMM",
	device.API(ma.BackendCoreaudio):  "CoreAudio",
	device.API(ma.BackendSndio):      "sndio",
	device.API(ma.BackendAudio4):     "audio(4)",
	device.API(ma.BackendOss):        "OSS",
	device.API(ma.BackendPulseaudio): "PulseAudio",
	device.API(ma.BackendAlsa):       "ALSA",
	device.API(ma.BackendJack):       "JACK",
	device.API(ma.BackendAaudio):     "AAudio",
	device.API(ma.BackendOpensl):     "OpenSL ES",
	device.API(ma.BackendWebaudio):   "Web Audio",
	device.API(ma.BackendNull):       "Null",
}

// Backend opens one miniaudio context per stream so that streams on
// different APIs never share driver state.
type Backend struct{}

// New returns a miniaudio backend.
func New() *Backend {
	return &Backend{}
}

// APIs returns every driver API that can initialize a context on this host.
func (b *Backend) APIs() map[device.API]string {
	out := make(map[device.API]string)
	for api, name := range apiNames {
		ctx, err := initContext(api)
		if err != nil {
			continue
		}
		freeContext(ctx)
		out[api] = name
	}
	return out
}

// InputDevices enumerates capture devices under api.
func (b *Backend) InputDevices(api device.API) (map[int]device.DeviceInfo, error) {
	return enumerate(api, ma.Capture)
}

// OutputDevices enumerates playback devices under api.
func (b *Backend) OutputDevices(api device.API) (map[int]device.DeviceInfo, error) {
	return enumerate(api, ma.Playback)
}

// OpenInput opens a capture stream on deviceID, or the default device when
// deviceID is empty.
func (b *Backend) OpenInput(api device.API, deviceID string, params device.StreamParams, h device.InputHandler) (device.Stream, error) {
	return open(api, ma.Capture, deviceID, params, ma.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) < 2 {
				return
			}
			h.OnCapture(int16View(input))
		},
	})
}

// OpenOutput opens a playback stream on deviceID, or the default device when
// deviceID is empty.
func (b *Backend) OpenOutput(api device.API, deviceID string, params device.StreamParams, h device.OutputHandler) (device.Stream, error) {
	var channels int
	s, err := open(api, ma.Playback, deviceID, params, ma.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			if len(output) < 2 {
				return
			}
			out := int16View(output)
			frames := int(frameCount)
			n := h.OnPlayback(out, frames, frames)
			if n < frames {
				clear(out[n*channels:])
			}
		},
	})
	if err != nil {
		return nil, err
	}
	channels = s.Format().Channels
	return s, nil
}

func int16View(b []byte) []int16 {
	return unsafe.Slice((*int16)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/2)
}

type stream struct {
	mu     sync.Mutex
	ctx    *ma.AllocatedContext
	dev    *ma.Device
	format device.Format
	name   string
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return fmt.Errorf("stream %q closed", s.name)
	}
	return s.dev.Start()
}

// Close uninitializes the device, which waits for any running callback.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return nil
	}
	s.dev.Uninit()
	s.dev = nil
	freeContext(s.ctx)
	s.ctx = nil

	logrus.WithFields(logrus.Fields{
		"function": "stream.Close",
		"stream":   s.name,
	}).Debug("Closed miniaudio stream")
	return nil
}

func (s *stream) Format() device.Format { return s.format }

func open(api device.API, kind ma.DeviceType, deviceID string, params device.StreamParams, cb ma.DeviceCallbacks) (*stream, error) {
	ctx, err := initContext(api)
	if err != nil {
		return nil, err
	}

	cfg := ma.DefaultDeviceConfig(kind)
	cfg.SampleRate = uint32(params.Format.SampleRate)
	sub := &cfg.Playback
	if kind == ma.Capture {
		sub = &cfg.Capture
	}
	sub.Format = ma.FormatS16
	sub.Channels = uint32(params.Format.Channels)

	if deviceID != "" {
		info, err := findDevice(ctx, kind, deviceID)
		if err != nil {
			freeContext(ctx)
			return nil, err
		}
		sub.DeviceID = info.ID.Pointer()
	}

	dev, err := ma.InitDevice(ctx.Context, cfg, cb)
	if err != nil {
		freeContext(ctx)
		return nil, fmt.Errorf("init device: %w", err)
	}

	format := device.Format{SampleRate: int(dev.SampleRate())}
	if kind == ma.Capture {
		format.Channels = int(dev.CaptureChannels())
	} else {
		format.Channels = int(dev.PlaybackChannels())
	}

	logrus.WithFields(logrus.Fields{
		"function":    "open",
		"stream":      params.Name,
		"device_id":   deviceID,
		"sample_rate": format.SampleRate,
		"channels":    format.Channels,
	}).Info("Opened miniaudio stream")

	return &stream{ctx: ctx, dev: dev, format: format, name: params.Name}, nil
}

func initContext(api device.API) (*ma.AllocatedContext, error) {
	var backends []ma.Backend
	if api != device.DefaultAPI {
		if _, ok := apiNames[api]; !ok {
			return nil, fmt.Errorf("unknown audio api %d", api)
		}
		backends = []ma.Backend{ma.Backend(api)}
	}
	ctx, err := ma.InitContext(backends, ma.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return ctx, nil
}

func freeContext(ctx *ma.AllocatedContext) {
	if err := ctx.Uninit(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "freeContext",
			"error":    err.Error(),
		}).Warn("Failed to uninitialize audio context")
	}
	ctx.Free()
}

func enumerate(api device.API, kind ma.DeviceType) (map[int]device.DeviceInfo, error) {
	ctx, err := initContext(api)
	if err != nil {
		return nil, err
	}
	defer freeContext(ctx)

	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	out := make(map[int]device.DeviceInfo, len(infos))
	for i, info := range infos {
		out[i] = device.DeviceInfo{Name: info.Name(), ID: info.ID.String()}
	}
	return out, nil
}

func findDevice(ctx *ma.AllocatedContext, kind ma.DeviceType, id string) (ma.DeviceInfo, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return ma.DeviceInfo{}, fmt.Errorf("list devices: %w", err)
	}
	for _, info := range infos {
		if info.ID.String() == id {
			return info, nil
		}
	}
	return ma.DeviceInfo{}, fmt.Errorf("device %q not found", id)
}
