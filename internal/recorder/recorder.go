// Package recorder appends decoded VBUS results to CSV files with
// automatic rotation.
package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shaunagostinho/vbusreader/internal/vbus"
)

// Recorder writes one CSV row per decoded field.
type Recorder struct {
	mu      sync.Mutex
	dir     string
	enabled bool
	log     *zap.Logger

	file   *os.File
	writer *csv.Writer
	rows   int
}

// Config holds recorder configuration.
type Config struct {
	Enabled bool
	Path    string
}

const (
	maxRowsPerFile = 100_000 // ~1 week of 30s polls with 20 fields
)

var csvHeader = []string{"timestamp", "complete", "device", "field", "value"}

// New creates a Recorder. Nothing is written until the first Record.
func New(cfg Config, log *zap.Logger) *Recorder {
	if cfg.Path == "" {
		cfg.Path = "/var/log/vbusreader"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		dir:     cfg.Path,
		enabled: cfg.Enabled,
		log:     log,
	}
}

// SetEnabled allows toggling recording at runtime.
func (r *Recorder) SetEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = on
	if !on && r.file != nil {
		r.closeFile()
	}
}

// IsEnabled returns whether recording is active.
func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Record writes every field of res, in device and field name order.
// complete marks whether the read reached the expected device count.
func (r *Recorder) Record(ts time.Time, res vbus.Result, complete bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled || len(res) == 0 {
		return nil
	}

	rows := buildRows(ts, res, complete)
	if r.writer == nil || r.rows+len(rows) > maxRowsPerFile {
		if err := r.rotateFile(ts); err != nil {
			return fmt.Errorf("recorder: rotate: %w", err)
		}
	}
	if err := r.writer.WriteAll(rows); err != nil {
		return fmt.Errorf("recorder: write: %w", err)
	}
	r.rows += len(rows)
	return nil
}

// Close flushes and closes the current file.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeFile()
}

func (r *Recorder) rotateFile(now time.Time) error {
	r.closeFile()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", r.dir, err)
	}

	filename := fmt.Sprintf("vbus_%s.csv", now.Format("2006-01-02_150405.000"))
	path := filepath.Join(r.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	r.file = f
	r.writer = csv.NewWriter(f)
	r.rows = 0

	if err := r.writer.Write(csvHeader); err != nil {
		return err
	}
	r.writer.Flush()

	r.log.Info("opened", zap.String("path", path))
	return nil
}

func (r *Recorder) closeFile() {
	if r.writer != nil {
		r.writer.Flush()
		r.writer = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

func buildRows(ts time.Time, res vbus.Result, complete bool) [][]string {
	stamp := ts.Format(time.RFC3339)
	done := boolStr(complete)

	devices := make([]string, 0, len(res))
	for d := range res {
		devices = append(devices, d)
	}
	sort.Strings(devices)

	var rows [][]string
	for _, d := range devices {
		fields := make([]string, 0, len(res[d]))
		for f := range res[d] {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			rows = append(rows, []string{stamp, done, d, f, res[d][f]})
		}
	}
	return rows
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
