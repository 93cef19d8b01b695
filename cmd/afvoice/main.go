// Package main provides the afvoice command: a secure point-to-point voice
// endpoint that captures from one audio device, sends sealed datagrams over
// UDP and plays back what the peer sends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/opd-ai/afvoice/audio"
	"github.com/opd-ai/afvoice/config"
	"github.com/opd-ai/afvoice/crypto"
	"github.com/opd-ai/afvoice/device"
	"github.com/opd-ai/afvoice/device/malgo"
	"github.com/opd-ai/afvoice/metrics"
	"github.com/opd-ai/afvoice/transport"
	"github.com/opd-ai/afvoice/voice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// CLI configuration
type CLIConfig struct {
	configPath  string
	logLevel    string
	listDevices bool
	help        bool
}

// parseCLIFlags parses command-line flags and returns the configuration.
func parseCLIFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.configPath, "config", "", "Path to YAML configuration (default: built-in defaults)")
	flag.StringVar(&cli.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flag.BoolVar(&cli.listDevices, "list-devices", false, "List audio APIs and devices, then exit")
	flag.BoolVar(&cli.help, "help", false, "Show help message")

	flag.Parse()
	return cli
}

// printUsage prints the usage information.
func printUsage() {
	fmt.Println("afvoice - secure real-time voice over UDP")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  # List capture and playback devices\n")
	fmt.Printf("  %s -list-devices\n", os.Args[0])
	fmt.Println()
	fmt.Printf("  # Run an endpoint\n")
	fmt.Printf("  %s -config afvoice.yaml\n", os.Args[0])
	fmt.Println()
	fmt.Println("Send SIGHUP to reload the configuration and rotate channel keys.")
}

// loadConfig reads the configuration file, or returns validated defaults.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	var cfg *config.Config
	if cli.configPath == "" {
		cfg = config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if cfg, err = config.Load(cli.configPath); err != nil {
			return nil, err
		}
	}
	if cli.logLevel != "" {
		cfg.LogLevel = cli.logLevel
	}
	return cfg, nil
}

// configureLogging applies the configured level.
func configureLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// listDevices prints every API and its devices.
func listDevices(backend device.Backend) {
	apis := device.APIs(backend)
	ids := make([]int, 0, len(apis))
	for id := range apis {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	for _, id := range ids {
		api := device.API(id)
		fmt.Printf("[%d] %s\n", id, apis[api])
		printDevices("  input ", device.CompatibleInputDevices, backend, api)
		printDevices("  output", device.CompatibleOutputDevices, backend, api)
	}
}

func printDevices(label string, list func(device.Backend, device.API) (map[int]device.DeviceInfo, error), backend device.Backend, api device.API) {
	devices, err := list(backend, api)
	if err != nil {
		fmt.Printf("%s: %v\n", label, err)
		return
	}
	for i := 0; i < len(devices); i++ {
		d := devices[i]
		fmt.Printf("%s %2d: %s (%s)\n", label, i, d.Name, d.ID)
	}
}

// newDecoder builds the receive decoder named in the configuration.
func newDecoder(cfg *config.Config) (audio.Decoder, error) {
	if cfg.Audio.ReceiveCodec == config.ReceiveCodecOpus {
		return audio.NewOpusDecoder(uint32(cfg.Audio.SampleRate), cfg.Audio.Channels)
	}
	return audio.PCMDecoder{}, nil
}

// newChannel builds the crypto channel from the configured secret.
func newChannel(cfg *config.Config) (*crypto.Channel, error) {
	keys, err := cfg.ChannelKeys()
	if err != nil {
		return nil, err
	}
	return crypto.NewChannel(crypto.ChannelConfig{
		Tag:           cfg.Network.ChannelTag,
		Mode:          cfg.CryptoMode(),
		Keys:          keys,
		ReplayWindow:  cfg.Crypto.ReplayWindow,
		RotationGrace: cfg.Crypto.RotationGrace,
	})
}

// serveMetrics exposes reg on listen until ctx ends.
func serveMetrics(ctx context.Context, listen string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithFields(logrus.Fields{
				"function": "serveMetrics",
				"error":    err.Error(),
			}).Error("Metrics server failed")
		}
	}()
}

// run wires configuration, transport, session and devices, and blocks until
// ctx ends.
func run(ctx context.Context, cli *CLIConfig, cfg *config.Config, backend device.Backend) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Listen != "" {
		serveMetrics(ctx, cfg.Metrics.Listen, reg)
	}

	tr, err := transport.NewUDPTransport(cfg.Network.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer tr.Close()

	channel, err := newChannel(cfg)
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	decoder, err := newDecoder(cfg)
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}

	sessionCfg := voice.Config{
		SampleRate:   cfg.Audio.SampleRate,
		FrameSize:    cfg.Audio.FrameSize,
		Channels:     cfg.Audio.Channels,
		RingCapacity: cfg.RingCapacity(),
	}
	if cfg.Network.Remote != "" {
		if sessionCfg.Remote, err = net.ResolveUDPAddr("udp", cfg.Network.Remote); err != nil {
			return fmt.Errorf("resolve remote: %w", err)
		}
	}
	session, err := voice.NewSession(sessionCfg, tr, channel, audio.PCMEncoder{}, decoder, m)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	bridgeCfg := device.DefaultConfig()
	bridgeCfg.API = device.API(cfg.Device.API)
	bridgeCfg.InputDevice = cfg.Device.Input
	bridgeCfg.OutputDevice = cfg.Device.Output
	bridgeCfg.StreamName = cfg.Device.StreamName
	bridgeCfg.SampleRate = cfg.Audio.SampleRate
	bridgeCfg.Channels = cfg.Audio.Channels
	bridgeCfg.MaxCallbackFrames = cfg.Audio.MaxCallbackFrames
	bridge, err := device.New(backend, bridgeCfg)
	if err != nil {
		return fmt.Errorf("create audio bridge: %w", err)
	}
	bridge.SetSink(session.CaptureSink())
	bridge.SetSource(session.PlaybackSource())

	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Stop()

	if err := bridge.Open(); err != nil {
		return err
	}
	defer bridge.Close()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"stats":    fmt.Sprintf("%+v", bridge.Stats()),
			}).Info("Shutting down")
			return nil
		case <-hup:
			rotateFromConfig(cli, session)
		}
	}
}

// rotateFromConfig reloads the configuration and installs freshly derived
// keys. Other changed settings take effect on restart.
func rotateFromConfig(cli *CLIConfig, session *voice.Session) {
	cfg, err := loadConfig(cli)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "rotateFromConfig",
			"error":    err.Error(),
		}).Error("Reload failed; keeping current keys")
		return
	}
	keys, err := cfg.ChannelKeys()
	if err == nil {
		err = session.RotateKeys(keys)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "rotateFromConfig",
			"error":    err.Error(),
		}).Error("Key rotation failed")
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "rotateFromConfig",
	}).Info("Rotated channel keys")
}

// setupSignalHandling sets up graceful shutdown on interrupt signals.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logrus.WithFields(logrus.Fields{
			"function": "setupSignalHandling",
			"signal":   sig.String(),
		}).Info("Received signal, initiating graceful shutdown")
		cancel()
	}()
}

func main() {
	cli := parseCLIFlags()
	if cli.help {
		printUsage()
		os.Exit(0)
	}

	backend := malgo.New()
	if cli.listDevices {
		listDevices(backend)
		os.Exit(0)
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}
	if err := configureLogging(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	if err := run(ctx, cli, cfg, backend); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Error("afvoice failed")
		os.Exit(1)
	}
}
