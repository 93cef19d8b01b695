package device

import "fmt"

// API identifies an audio driver API (ALSA, PulseAudio, WASAPI, ...) within a
// Backend.
type API int

// DefaultAPI lets the backend pick its preferred driver API.
const DefaultAPI API = -1

// DeviceInfo describes one enumerated device.
type DeviceInfo struct {
	Name string // human readable
	ID   string // stable across enumerations
}

// Format is the PCM layout of a stream. Samples are always signed 16-bit
// interleaved.
type Format struct {
	SampleRate int
	Channels   int
}

// StreamParams describe a stream to open.
type StreamParams struct {
	Name   string // shown by mixers that display per-stream names
	Format Format
}

// InputHandler receives captured audio on the driver's callback thread.
// samples holds interleaved frames in the stream's Format and is only valid
// for the duration of the call.
type InputHandler interface {
	OnCapture(samples []int16)
}

// OutputHandler supplies playback audio on the driver's callback thread. out
// has room for maxFrames interleaved frames; the handler fills at least
// minFrames of them and returns how many it wrote.
type OutputHandler interface {
	OnPlayback(out []int16, minFrames, maxFrames int) int
}

// Stream is one open hardware stream.
type Stream interface {
	// Start begins invoking the handler.
	Start() error
	// Close stops the stream. No handler call is in progress or will start
	// once Close returns.
	Close() error
	// Format reports the format the driver actually granted.
	Format() Format
}

// Backend is the driver capability the bridge is written against.
type Backend interface {
	APIs() map[API]string
	InputDevices(api API) (map[int]DeviceInfo, error)
	OutputDevices(api API) (map[int]DeviceInfo, error)
	OpenInput(api API, deviceID string, params StreamParams, h InputHandler) (Stream, error)
	OpenOutput(api API, deviceID string, params StreamParams, h OutputHandler) (Stream, error)
}

// APIs returns the driver APIs the backend can use, keyed by identifier.
func APIs(b Backend) map[API]string {
	return b.APIs()
}

// CompatibleInputDevices lists capture devices under api.
func CompatibleInputDevices(b Backend, api API) (map[int]DeviceInfo, error) {
	devices, err := b.InputDevices(api)
	if err != nil {
		return nil, fmt.Errorf("enumerate input devices: %w", err)
	}
	return devices, nil
}

// CompatibleOutputDevices lists playback devices under api.
func CompatibleOutputDevices(b Backend, api API) (map[int]DeviceInfo, error) {
	devices, err := b.OutputDevices(api)
	if err != nil {
		return nil, fmt.Errorf("enumerate output devices: %w", err)
	}
	return devices, nil
}

// resolveDevice maps a configured name or id to a device id. An empty
// selector means the system default, reported as the empty id.
func resolveDevice(devices map[int]DeviceInfo, selector string) (string, bool) {
	if selector == "" {
		return "", true
	}
	for _, d := range devices {
		if d.ID == selector {
			return d.ID, true
		}
	}
	for _, d := range devices {
		if d.Name == selector {
			return d.ID, true
		}
	}
	return "", false
}
