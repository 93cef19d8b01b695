package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opd-ai/afvoice/audio"
	"github.com/opd-ai/afvoice/config"
	"github.com/opd-ai/afvoice/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "afvoice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, "crypto:\n  shared_secret: "+strings.Repeat("11", 32)+"\n  role: initiator\n")

	cfg, err := loadConfig(&CLIConfig{configPath: path, logLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = loadConfig(&CLIConfig{})
	assert.ErrorIs(t, err, config.ErrInvalidConfig, "defaults lack a shared secret")
}

func TestConfigureLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())

	require.NoError(t, configureLogging("warn"))
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	assert.Error(t, configureLogging("loud"))
}

func TestNewDecoderAndChannel(t *testing.T) {
	cfg := config.Default()
	cfg.Crypto.SharedSecret = strings.Repeat("22", 32)
	cfg.Crypto.Role = "responder"
	require.NoError(t, cfg.Validate())

	dec, err := newDecoder(cfg)
	require.NoError(t, err)
	assert.IsType(t, audio.PCMDecoder{}, dec)

	cfg.Audio.ReceiveCodec = "opus"
	cfg.Audio.Channels = 2
	require.NoError(t, cfg.Validate())
	dec, err = newDecoder(cfg)
	require.NoError(t, err)
	assert.IsType(t, &audio.OpusDecoder{}, dec)

	ch, err := newChannel(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Network.ChannelTag, ch.Tag())
	assert.Equal(t, crypto.ModeChaCha20Poly1305, ch.Mode())
}
