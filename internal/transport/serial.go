package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// SerialConfig holds settings for a VBUS/USB or UART interface.
type SerialConfig struct {
	PortPath    string        `yaml:"port" toml:"port" json:"port"`
	BaudRate    int           `yaml:"baud_rate" toml:"baud_rate" json:"baudRate"`
	ReadTimeout time.Duration `yaml:"-" toml:"-" json:"-"`
}

// Serial reads the VBUS stream from a serial port. Reads return after
// ReadTimeout with zero bytes when the bus is idle.
type Serial struct {
	path string
	port serial.Port
}

// OpenSerial opens the port 8N1. VBUS runs at 9600 baud.
func OpenSerial(cfg SerialConfig, log *zap.Logger) (*Serial, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.PortPath, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to open %s: %w", cfg.PortPath, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: failed to set timeout on %s: %w", cfg.PortPath, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		log.Debug("reset input buffer failed", zap.Error(err))
	}
	log.Info("opened", zap.String("port", cfg.PortPath), zap.Int("baud", cfg.BaudRate))
	return &Serial{path: cfg.PortPath, port: port}, nil
}

func (s *Serial) Name() string                { return "serial " + s.path }
func (s *Serial) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *Serial) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *Serial) Close() error                { return s.port.Close() }
