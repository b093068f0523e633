// Package config loads vbusreader settings from YAML or TOML, a .env file
// and VBUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/vbusreader/internal/logging"
	"github.com/shaunagostinho/vbusreader/internal/transport"
)

var ErrInvalid = errors.New("config: invalid")

// Config holds all reader settings.
type Config struct {
	// Connection is "lan", "serial", "stdin" or "demo".
	Connection string       `yaml:"connection" toml:"connection"`
	LAN        LANConfig    `yaml:"lan" toml:"lan"`
	Serial     SerialConfig `yaml:"serial" toml:"serial"`
	Spec       SpecConfig   `yaml:"spec" toml:"spec"`

	// ExpectedPackets is the number of distinct devices to collect per read.
	ExpectedPackets int `yaml:"expected_packets" toml:"expected_packets"`
	// RepetitivePackets aborts a read after this many unchanged batches (0 = off).
	RepetitivePackets int  `yaml:"repetitive_packets" toml:"repetitive_packets"`
	UseUnits          bool `yaml:"use_units" toml:"use_units"`
	Debug             bool `yaml:"debug" toml:"debug"`

	Log      LogConfig      `yaml:"log" toml:"log"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Recorder RecorderConfig `yaml:"recorder" toml:"recorder"`

	path string
}

type LANConfig struct {
	Address       string `yaml:"address" toml:"address"` // host or host:port
	Password      string `yaml:"password" toml:"password"`
	DialTimeoutMs int    `yaml:"dial_timeout_ms" toml:"dial_timeout_ms"`
}

type SerialConfig struct {
	Port          string `yaml:"port" toml:"port"` // e.g. /dev/ttyAMA0
	BaudRate      int    `yaml:"baud_rate" toml:"baud_rate"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms" toml:"read_timeout_ms"`
}

// SpecConfig lists the specification files describing the devices on the bus.
type SpecConfig struct {
	Dir   string   `yaml:"dir" toml:"dir"`
	Files []string `yaml:"files" toml:"files"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"` // debug, info, warn, error; empty = silent
}

type ServerConfig struct {
	ListenAddr     string `yaml:"listen_addr" toml:"listen_addr"`
	PollIntervalMs int    `yaml:"poll_interval_ms" toml:"poll_interval_ms"`
}

type RecorderConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		Connection: transport.KindLAN,
		LAN: LANConfig{
			Address:       "vbus.lan:7053",
			Password:      "vbus",
			DialTimeoutMs: 10000,
		},
		Serial: SerialConfig{
			Port:          "/dev/ttyAMA0",
			BaudRate:      9600,
			ReadTimeoutMs: 100,
		},
		Spec: SpecConfig{
			Dir:   "spec",
			Files: []string{"DeltaSolBSPlus.json"},
		},
		ExpectedPackets:   1,
		RepetitivePackets: 0,
		UseUnits:          true,
		Server: ServerConfig{
			ListenAddr:     ":8080",
			PollIntervalMs: 30000,
		},
		Recorder: RecorderConfig{
			Enabled: false,
			Path:    "/var/log/vbusreader",
		},
	}
}

// Load reads path (YAML, or TOML when the extension is .toml), then applies
// .env files and environment overrides. A missing file is not an error;
// defaults are used. A file that fails to parse is.
func Load(path string) (*Config, error) {
	log := logging.Named("config")
	cfg := Default()
	cfg.path = path

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Info("no config file, using defaults", zap.String("path", path))
		case err != nil:
			return nil, fmt.Errorf("config: %w", err)
		default:
			if err := cfg.decode(path, data); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
			log.Info("loaded", zap.String("path", path))
			// Relative spec dirs are relative to the config file.
			if cfg.Spec.Dir != "" && !filepath.IsAbs(cfg.Spec.Dir) {
				cfg.Spec.Dir = filepath.Join(filepath.Dir(path), cfg.Spec.Dir)
			}
		}
	}

	envPaths := []string{".env"}
	if path != "" {
		envPaths = append([]string{filepath.Join(filepath.Dir(path), ".env")}, envPaths...)
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), c)
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

// Validate rejects settings no read can start with.
func (c *Config) Validate() error {
	switch c.Connection {
	case transport.KindLAN, transport.KindSerial, transport.KindStdin, transport.KindDemo:
	default:
		return fmt.Errorf("%w: unknown connection type %q", ErrInvalid, c.Connection)
	}
	if len(c.Spec.Files) == 0 {
		return fmt.Errorf("%w: no spec files configured", ErrInvalid)
	}
	if c.ExpectedPackets < 0 || c.RepetitivePackets < 0 {
		return fmt.Errorf("%w: expected_packets and repetitive_packets must not be negative", ErrInvalid)
	}
	return nil
}

// Transport converts the connection settings for transport.Open.
func (c *Config) Transport() transport.Config {
	return transport.Config{
		Connection: c.Connection,
		LAN: transport.LANConfig{
			Address:     c.LAN.Address,
			Password:    c.LAN.Password,
			DialTimeout: time.Duration(c.LAN.DialTimeoutMs) * time.Millisecond,
		},
		Serial: transport.SerialConfig{
			PortPath:    c.Serial.Port,
			BaudRate:    c.Serial.BaudRate,
			ReadTimeout: time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond,
		},
	}
}

// PollInterval is the time between reads in serve mode.
func (c *Config) PollInterval() time.Duration {
	if c.Server.PollIntervalMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Server.PollIntervalMs) * time.Millisecond
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
// Variables already present in the environment win.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	logging.Named("config").Debug("loading .env", zap.String("path", path))
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads VBUS_* environment variables.
// Supported: VBUS_CONNECTION, VBUS_LAN_ADDRESS, VBUS_LAN_PASSWORD,
// VBUS_SERIAL_PORT, VBUS_SERIAL_BAUD, VBUS_SPEC_DIR, VBUS_SPEC_FILES
// (comma separated), VBUS_EXPECTED_PACKETS, VBUS_REPETITIVE_PACKETS,
// VBUS_USE_UNITS, VBUS_DEBUG, VBUS_LISTEN_ADDR, VBUS_RECORDER_PATH.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VBUS_CONNECTION"); v != "" {
		c.Connection = v
	}
	if v := os.Getenv("VBUS_LAN_ADDRESS"); v != "" {
		c.LAN.Address = v
	}
	if v := os.Getenv("VBUS_LAN_PASSWORD"); v != "" {
		c.LAN.Password = v
	}
	if v := os.Getenv("VBUS_SERIAL_PORT"); v != "" {
		c.Serial.Port = v
	}
	if v := os.Getenv("VBUS_SERIAL_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Serial.BaudRate = n
		}
	}
	if v := os.Getenv("VBUS_SPEC_DIR"); v != "" {
		c.Spec.Dir = v
	}
	if v := os.Getenv("VBUS_SPEC_FILES"); v != "" {
		var files []string
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				files = append(files, f)
			}
		}
		c.Spec.Files = files
	}
	if v := os.Getenv("VBUS_EXPECTED_PACKETS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ExpectedPackets = n
		}
	}
	if v := os.Getenv("VBUS_REPETITIVE_PACKETS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RepetitivePackets = n
		}
	}
	if v := os.Getenv("VBUS_USE_UNITS"); v != "" {
		c.UseUnits = isTrue(v)
	}
	if v := os.Getenv("VBUS_DEBUG"); v != "" {
		c.Debug = isTrue(v)
	}
	if v := os.Getenv("VBUS_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("VBUS_RECORDER_PATH"); v != "" {
		c.Recorder.Path = v
	}
}

func isTrue(v string) bool {
	return v == "1" || v == "true" || v == "yes"
}
