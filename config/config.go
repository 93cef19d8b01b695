// Package config holds the YAML configuration of a voice endpoint.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/opd-ai/afvoice/crypto"
	"github.com/opd-ai/afvoice/limits"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Receive codec names.
const (
	ReceiveCodecPCM  = "pcm"
	ReceiveCodecOpus = "opus"
)

// Config is the complete endpoint configuration.
type Config struct {
	Crypto  CryptoConfig  `yaml:"crypto"`
	Audio   AudioConfig   `yaml:"audio"`
	Device  DeviceConfig  `yaml:"device"`
	Network NetworkConfig `yaml:"network"`
	Metrics MetricsConfig `yaml:"metrics"`

	// debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// CryptoConfig configures the channel cipher and replay protection.
type CryptoConfig struct {
	Mode          string        `yaml:"mode"` // none, chacha20-poly1305
	ReplayWindow  int           `yaml:"replay_window"`
	RotationGrace time.Duration `yaml:"rotation_grace"`

	// Hex-encoded secret handed over by the session layer, at least 32 bytes.
	SharedSecret string `yaml:"shared_secret"`
	Salt         string `yaml:"salt"`

	// initiator or responder; the two ends must differ. No default.
	Role string `yaml:"role"`
}

// AudioConfig sizes the sample pipeline.
type AudioConfig struct {
	SampleRate         int    `yaml:"sample_rate"`
	FrameSize          int    `yaml:"frame_size"` // samples per codec frame
	Channels           int    `yaml:"channels"`
	RingCapacityFrames int    `yaml:"ring_capacity_frames"`
	MaxCallbackFrames  int    `yaml:"max_callback_frames"`
	ReceiveCodec       string `yaml:"receive_codec"` // pcm, opus; transmit is always pcm
}

// DeviceConfig selects audio hardware. Empty names pick defaults.
type DeviceConfig struct {
	API        int    `yaml:"api"` // -1 lets the backend choose
	Input      string `yaml:"input"`
	Output     string `yaml:"output"`
	StreamName string `yaml:"stream_name"`
}

// NetworkConfig configures the datagram transport.
type NetworkConfig struct {
	Listen     string `yaml:"listen"`
	Remote     string `yaml:"remote"`
	ChannelTag string `yaml:"channel_tag"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used for unset fields.
func Default() *Config {
	return &Config{
		Crypto: CryptoConfig{
			Mode:          crypto.ModeChaCha20Poly1305.String(),
			ReplayWindow:  crypto.DefaultReplayWindow,
			RotationGrace: crypto.DefaultRotationGrace,
		},
		Audio: AudioConfig{
			SampleRate:         48000,
			FrameSize:          960,
			Channels:           1,
			RingCapacityFrames: 10,
			MaxCallbackFrames:  8192,
			ReceiveCodec:       ReceiveCodecPCM,
		},
		Device: DeviceConfig{
			API:        -1,
			StreamName: "afvoice",
		},
		Network: NetworkConfig{
			Listen:     "0.0.0.0:6010",
			ChannelTag: "voice",
		},
		LogLevel: "info",
	}
}

// Load reads path, applies it over Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"path":     path,
	}).Debug("Loaded configuration")

	return cfg, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	mode, err := crypto.ParseMode(c.Crypto.Mode)
	if err != nil {
		return invalid("crypto.mode: %v", err)
	}
	if c.Crypto.ReplayWindow < 1 || c.Crypto.ReplayWindow > crypto.MaxReplayWindow {
		return invalid("crypto.replay_window must be 1..%d, got %d", crypto.MaxReplayWindow, c.Crypto.ReplayWindow)
	}
	if c.Crypto.RotationGrace < 0 {
		return invalid("crypto.rotation_grace must not be negative")
	}
	if mode == crypto.ModeChaCha20Poly1305 {
		secret, err := hex.DecodeString(c.Crypto.SharedSecret)
		if err != nil {
			return invalid("crypto.shared_secret is not hex: %v", err)
		}
		if len(secret) < crypto.KeySize {
			return invalid("crypto.shared_secret must be at least %d bytes", crypto.KeySize)
		}
		if c.Network.ChannelTag == "" {
			return invalid("network.channel_tag is required for key derivation")
		}
		if _, err := crypto.ParseRole(c.Crypto.Role); err != nil {
			return invalid("crypto.role must be initiator or responder: %v", err)
		}
	}
	if _, err := hex.DecodeString(c.Crypto.Salt); err != nil {
		return invalid("crypto.salt is not hex: %v", err)
	}

	if c.Audio.SampleRate <= 0 {
		return invalid("audio.sample_rate must be positive")
	}
	if c.Audio.FrameSize <= 0 {
		return invalid("audio.frame_size must be positive")
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return invalid("audio.channels must be 1 or 2")
	}
	if c.Audio.RingCapacityFrames < 2 {
		return invalid("audio.ring_capacity_frames must be at least 2")
	}
	if c.Audio.MaxCallbackFrames <= 0 {
		return invalid("audio.max_callback_frames must be positive")
	}
	if c.Audio.ReceiveCodec != ReceiveCodecPCM && c.Audio.ReceiveCodec != ReceiveCodecOpus {
		return invalid("audio.receive_codec must be pcm or opus, got %q", c.Audio.ReceiveCodec)
	}

	if _, err := net.ResolveUDPAddr("udp", c.Network.Listen); err != nil {
		return invalid("network.listen: %v", err)
	}
	if c.Network.Remote != "" {
		if _, err := net.ResolveUDPAddr("udp", c.Network.Remote); err != nil {
			return invalid("network.remote: %v", err)
		}
	}
	if len(c.Network.ChannelTag) > limits.MaxChannelTagLength {
		return invalid("network.channel_tag is longer than %d bytes", limits.MaxChannelTagLength)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level: %v", err)
	}
	return nil
}

// CryptoMode returns the parsed cipher mode. Call Validate first.
func (c *Config) CryptoMode() crypto.Mode {
	m, _ := crypto.ParseMode(c.Crypto.Mode)
	return m
}

// ChannelKeys derives this endpoint's transmit and receive keys from the
// configured secret. In ModeNone it returns zero keys.
func (c *Config) ChannelKeys() (crypto.ChannelKeys, error) {
	if c.CryptoMode() == crypto.ModeNone {
		return crypto.ChannelKeys{}, nil
	}
	secret, err := hex.DecodeString(c.Crypto.SharedSecret)
	if err != nil {
		return crypto.ChannelKeys{}, invalid("crypto.shared_secret is not hex: %v", err)
	}
	salt, err := hex.DecodeString(c.Crypto.Salt)
	if err != nil {
		return crypto.ChannelKeys{}, invalid("crypto.salt is not hex: %v", err)
	}
	role, err := crypto.ParseRole(c.Crypto.Role)
	if err != nil {
		return crypto.ChannelKeys{}, invalid("crypto.role: %v", err)
	}
	defer crypto.SecureWipe(secret)
	return crypto.DeriveChannelKeys(secret, salt, c.Network.ChannelTag, role)
}

// RingCapacity returns the ring size in samples.
func (c *Config) RingCapacity() int {
	return c.Audio.RingCapacityFrames * c.Audio.FrameSize * c.Audio.Channels
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
