package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDemoConfig(t *testing.T) string {
	t.Helper()
	specDir, err := filepath.Abs(filepath.Join("..", "..", "spec"))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := fmt.Sprintf("connection: demo\nspec:\n  dir: %q\n  files: [DeltaSolBSPlus.json]\nexpected_packets: 1\nuse_units: false\n", specDir)
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		configPath, logLevel, connection = "config.yaml", "", ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestReadCommand(t *testing.T) {
	out, err := execute(t, "read", "--config", writeDemoConfig(t))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var res map[string]map[string]string
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	fields := res["DeltaSol BS Plus"]
	if fields["Version"] != "2.01" {
		t.Errorf("fields = %v", fields)
	}
}

func TestProbeCommand(t *testing.T) {
	out, err := execute(t, "probe", "--config", writeDemoConfig(t))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !strings.Contains(out, "Found 1 distinct packet set(s)") {
		t.Errorf("output = %q", out)
	}
}

func TestUnknownConnection(t *testing.T) {
	_, err := execute(t, "read", "--config", writeDemoConfig(t), "--connection", "carrier-pigeon")
	if err == nil || !strings.Contains(err.Error(), "unknown connection") {
		t.Fatalf("err = %v", err)
	}
}
