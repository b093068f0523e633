// Package transport provides the byte sources a VBUS session reads from:
// a LAN adapter (TCP with login), a serial port, standard input and a
// simulated controller.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/shaunagostinho/vbusreader/internal/vbus"
)

// Connection kinds accepted by Open.
const (
	KindLAN    = "lan"
	KindSerial = "serial"
	KindStdin  = "stdin"
	KindDemo   = "demo"
)

var (
	ErrUnknownConnection = errors.New("transport: unknown connection type")
	ErrReadOnly          = errors.New("transport: source is read-only")
	ErrClosed            = errors.New("transport: source closed")
)

// Source is an open connection a vbus.Session can read from.
type Source interface {
	vbus.ByteSource
	io.Closer
	Name() string
}

// Config selects and configures a transport.
type Config struct {
	Connection string
	LAN        LANConfig
	Serial     SerialConfig
	// Stdin overrides os.Stdin for the stdin transport.
	Stdin io.Reader
}

// Open connects the configured transport. For the LAN transport this
// includes the login and data request handshake; a failed handshake is
// returned as an error and the connection is closed.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (Source, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Connection {
	case KindLAN:
		return DialLAN(ctx, cfg.LAN, log.Named("lan"))
	case KindSerial:
		return OpenSerial(cfg.Serial, log.Named("serial"))
	case KindStdin:
		r := cfg.Stdin
		if r == nil {
			r = os.Stdin
		}
		return NewReader("stdin", r), nil
	case KindDemo:
		return NewDemo(), nil
	default:
		return nil, fmt.Errorf("%w: %q (use lan, serial, stdin or demo)", ErrUnknownConnection, cfg.Connection)
	}
}

// Reader adapts a plain io.Reader, such as a pipe, into a Source.
type Reader struct {
	name string
	r    io.Reader
}

func NewReader(name string, r io.Reader) *Reader {
	return &Reader{name: name, r: r}
}

func (r *Reader) Name() string                { return r.name }
func (r *Reader) Read(p []byte) (int, error)  { return r.r.Read(p) }
func (r *Reader) Write(p []byte) (int, error) { return 0, ErrReadOnly }

func (r *Reader) Close() error {
	if c, ok := r.r.(io.Closer); ok && r.r != os.Stdin {
		return c.Close()
	}
	return nil
}
