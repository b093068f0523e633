package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connection != "lan" || cfg.ExpectedPackets != 1 || !cfg.UseUnits {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(`
connection: serial
serial:
  port: /dev/ttyUSB0
spec:
  dir: specs
  files: [DeltaSolBS2009.json, DeltaSolBX.json]
expected_packets: 2
repetitive_packets: 3
use_units: false
`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connection != "serial" || cfg.Serial.Port != "/dev/ttyUSB0" {
		t.Errorf("serial settings = %+v", cfg.Serial)
	}
	if cfg.Serial.BaudRate != 9600 {
		t.Errorf("baud rate default lost: %d", cfg.Serial.BaudRate)
	}
	if cfg.Spec.Dir != filepath.Join(dir, "specs") || len(cfg.Spec.Files) != 2 {
		t.Errorf("spec = %+v", cfg.Spec)
	}
	if cfg.ExpectedPackets != 2 || cfg.RepetitivePackets != 3 || cfg.UseUnits {
		t.Errorf("read settings = %d %d %v", cfg.ExpectedPackets, cfg.RepetitivePackets, cfg.UseUnits)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	err := os.WriteFile(path, []byte(`
connection = "lan"
expected_packets = 3

[lan]
address = "192.168.1.20"
password = "secret"
`), 0644)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LAN.Address != "192.168.1.20" || cfg.LAN.Password != "secret" || cfg.ExpectedPackets != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	tc := cfg.Transport()
	if tc.LAN.DialTimeout != 10*time.Second {
		t.Errorf("dial timeout = %v", tc.LAN.DialTimeout)
	}
}

func TestLoadParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("connection: [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VBUS_CONNECTION", "stdin")
	t.Setenv("VBUS_SPEC_FILES", "a.json, b.json")
	t.Setenv("VBUS_EXPECTED_PACKETS", "4")
	t.Setenv("VBUS_USE_UNITS", "0")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connection != "stdin" || cfg.ExpectedPackets != 4 || cfg.UseUnits {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Spec.Files) != 2 || cfg.Spec.Files[1] != "b.json" {
		t.Errorf("spec files = %v", cfg.Spec.Files)
	}
}

func TestEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("VBUS_LAN_PASSWORD=fromfile\nVBUS_SERIAL_PORT='/dev/ttyS9'\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VBUS_LAN_PASSWORD", "fromenv")
	t.Setenv("VBUS_SERIAL_PORT", "")

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LAN.Password != "fromenv" {
		t.Errorf("password = %q", cfg.LAN.Password)
	}
	if cfg.Serial.Port != "/dev/ttyS9" {
		t.Errorf("port = %q", cfg.Serial.Port)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Connection = "bluetooth"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("unknown connection: err = %v", err)
	}
	cfg = Default()
	cfg.Spec.Files = nil
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("no spec files: err = %v", err)
	}
}
