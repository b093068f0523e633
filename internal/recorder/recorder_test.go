package recorder

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaunagostinho/vbusreader/internal/vbus"
)

func readCSV(t *testing.T, dir string) [][]string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "vbus_*.csv"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("files = %v, %v", matches, err)
	}
	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestRecord(t *testing.T) {
	dir := t.TempDir()
	r := New(Config{Enabled: true, Path: dir}, nil)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	res := vbus.Result{
		"DeltaSol BS Plus": {"Temperature sensor 2": "41.3 °C", "Temperature sensor 1": "63.0 °C"},
		"EM 1":             {"Flow": "12"},
	}
	if err := r.Record(ts, res, true); err != nil {
		t.Fatalf("Record: %v", err)
	}
	r.Close()

	rows := readCSV(t, dir)
	if len(rows) != 4 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0][2] != "device" {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{"2024-06-01T12:00:00Z", "1", "DeltaSol BS Plus", "Temperature sensor 1", "63.0 °C"}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("row 1 = %v, want %v", rows[1], want)
			break
		}
	}
	if rows[3][2] != "EM 1" {
		t.Errorf("row 3 = %v", rows[3])
	}
}

func TestRecordDisabled(t *testing.T) {
	dir := t.TempDir()
	r := New(Config{Enabled: false, Path: dir}, nil)
	if err := r.Record(time.Now(), vbus.Result{"x": {"a": "1"}}, false); err != nil {
		t.Fatal(err)
	}
	if r.IsEnabled() {
		t.Error("recorder should be disabled")
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.csv"))
	if len(matches) != 0 {
		t.Errorf("unexpected files: %v", matches)
	}

	r.SetEnabled(true)
	if err := r.Record(time.Now(), vbus.Result{"x": {"a": "1"}}, false); err != nil {
		t.Fatal(err)
	}
	r.Close()
	if rows := readCSV(t, dir); len(rows) != 2 || rows[1][1] != "0" {
		t.Errorf("rows = %v", rows)
	}
}
