// Package config loads, validates and persists the host's TOML
// configuration file: a single document with webserver/stream/application
// sections.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/hgaiser/moonshine/internal/logging"
)

var log = logging.L("config")

// Config is the top-level configuration document.
type Config struct {
	// Name of the host, advertised over mDNS and reported in /serverinfo.
	Name string `toml:"name"`

	// Address to bind all listening sockets to.
	Address string `toml:"address"`

	// State is the path of the persisted host state (unique id and paired
	// client list).
	State string `toml:"state"`

	Logging   LoggingConfig   `toml:"logging"`
	Webserver WebserverConfig `toml:"webserver"`
	Stream    StreamConfig    `toml:"stream"`

	Applications []ApplicationConfig `toml:"application"`

	// ApplicationCatalog optionally points at a YAML catalog merged on top
	// of the [[application]] entries above.
	ApplicationCatalog string `toml:"application_catalog,omitempty"`

	// Time in seconds since the last control-channel Ping after which the
	// session's watchdog aborts the stream.
	StreamTimeout uint64 `toml:"stream_timeout"`
}

// LoggingConfig selects the structured log output shape.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// WebserverConfig holds the HTTP/HTTPS front-end ports and certificates.
type WebserverConfig struct {
	Port         uint16 `toml:"port"`
	PortHTTPS    uint16 `toml:"port_https"`
	Certificate  string `toml:"certificate"`
	PrivateKey   string `toml:"private_key"`
	AutoGenerate bool   `toml:"auto_generate_certificate"`

	// StatsPort serves the loopback-only live stats endpoint; 0 disables
	// it.
	StatsPort uint16 `toml:"stats_port"`
}

// ApplicationConfig describes one launchable application entry.
type ApplicationConfig struct {
	Title   string   `toml:"title"`
	Boxart  string   `toml:"boxart,omitempty"`
	Command []string `toml:"command"`

	// RunBefore and RunAfter are commands run in order, each waited on before
	// the next, when a session for this application starts and stops
	// respectively. Each entry is a
	// full argv; "{width}" and "{height}" are substituted from the session's
	// negotiated resolution before the command runs.
	RunBefore [][]string `toml:"run_before,omitempty"`
	RunAfter  [][]string `toml:"run_after,omitempty"`
}

// ID hashes the title into the 32-bit application id Moonlight expects in
// /applist and /launch. FNV-1a keeps ids stable across restarts without
// persisting a separate id table.
func (a ApplicationConfig) ID() int32 {
	h := fnv1a32(a.Title)
	return int32(h)
}

func fnv1a32(s string) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// StreamConfig groups the RTSP port and the three media stream configs.
type StreamConfig struct {
	Port    uint16              `toml:"port"`
	Video   VideoStreamConfig   `toml:"video"`
	Audio   AudioStreamConfig   `toml:"audio"`
	Control ControlStreamConfig `toml:"control"`
}

// VideoStreamConfig configures the video UDP port and FEC ratio.
type VideoStreamConfig struct {
	Port          uint16 `toml:"port"`
	FECPercentage uint8  `toml:"fec_percentage"`
}

// AudioStreamConfig configures the audio UDP port and capture sink.
type AudioStreamConfig struct {
	Port uint16 `toml:"port"`
	Sink string `toml:"sink,omitempty"`
}

// ControlStreamConfig configures the reliable-UDP control port.
type ControlStreamConfig struct {
	Port uint16 `toml:"port"`
}

// Default returns the built-in configuration with the standard GameStream
// port layout.
func Default() *Config {
	return &Config{
		Name:    "Moonshine",
		Address: "0.0.0.0",
		State:   "$HOME/.config/moonshine/state.toml",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Webserver: WebserverConfig{
			Port:         47989,
			PortHTTPS:    47984,
			Certificate:  "$HOME/.config/moonshine/cert.pem",
			PrivateKey:   "$HOME/.config/moonshine/key.pem",
			AutoGenerate: true,
			StatsPort:    47990,
		},
		Stream: StreamConfig{
			Port: 48010,
			Video: VideoStreamConfig{
				Port:          47998,
				FECPercentage: 20,
			},
			Audio: AudioStreamConfig{
				Port: 48000,
			},
			Control: ControlStreamConfig{
				Port: 47999,
			},
		},
		Applications: []ApplicationConfig{
			{
				Title:   "Desktop",
				Command: nil,
			},
		},
		StreamTimeout: 60,
	}
}

// Load reads cfgFile, generating a default document there first if it does
// not exist.
func Load(cfgFile string) (*Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Info("configuration file does not exist, generating default", "path", cfgFile)
		if err := Save(Default(), cfgFile); err != nil {
			return nil, fmt.Errorf("generate default configuration: %w", err)
		}
	}

	raw, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("read configuration file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse configuration file: %w", err)
	}

	cfg.Address = os.ExpandEnv(cfg.Address)
	cfg.State = os.ExpandEnv(cfg.State)
	cfg.Webserver.Certificate = os.ExpandEnv(cfg.Webserver.Certificate)
	cfg.Webserver.PrivateKey = os.ExpandEnv(cfg.Webserver.PrivateKey)
	cfg.ApplicationCatalog = os.ExpandEnv(cfg.ApplicationCatalog)

	result := cfg.Validate()
	for _, w := range result.Warnings {
		log.Warn("config validation", "issue", w)
	}
	if result.HasFatals() {
		for _, f := range result.Fatals {
			log.Error("config validation fatal", "issue", f)
		}
		return nil, fmt.Errorf("configuration has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

// Save serializes cfg as TOML to path, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create configuration directory: %w", err)
		}
	}

	raw, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write configuration file: %w", err)
	}

	return nil
}
