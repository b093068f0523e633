package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	greeting       = "+HELLO\n"
	ackPrefix      = "+OK"
	dataCommand    = "DATA\n"
	defaultLANPort = "7053"
)

var (
	ErrLoginFailed         = errors.New("transport: login failed")
	ErrDataRequestRejected = errors.New("transport: data request rejected")
)

// LANConfig holds connection settings for a VBUS/LAN adapter or data logger.
type LANConfig struct {
	Address     string        `yaml:"address" toml:"address" json:"address"` // host:port, port defaults to 7053
	Password    string        `yaml:"password" toml:"password" json:"-"`
	DialTimeout time.Duration `yaml:"-" toml:"-" json:"-"`
}

// LAN is a TCP connection to a VBUS/LAN adapter that has completed the
// login handshake and is streaming raw VBUS data.
type LAN struct {
	addr string
	conn net.Conn
	r    *bufio.Reader
	log  *zap.Logger
}

// DialLAN connects, logs in and requests the data stream.
func DialLAN(ctx context.Context, cfg LANConfig, log *zap.Logger) (*LAN, error) {
	addr := cfg.Address
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultLANPort)
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	log.Info("connected", zap.String("addr", addr))

	l, err := newLAN(addr, conn, cfg.Password, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return l, nil
}

func newLAN(addr string, conn net.Conn, password string, log *zap.Logger) (*LAN, error) {
	l := &LAN{
		addr: addr,
		conn: conn,
		r:    bufio.NewReader(conn),
		log:  log,
	}
	if err := l.login(password); err != nil {
		return nil, err
	}
	if err := l.requestData(); err != nil {
		return nil, err
	}
	return l, nil
}

// login expects the adapter greeting, sends the password and waits for
// the acknowledgment.
func (l *LAN) login(password string) error {
	line, err := l.r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("%w: reading greeting: %v", ErrLoginFailed, err)
	}
	if line != greeting {
		return fmt.Errorf("%w: unexpected greeting %q", ErrLoginFailed, line)
	}
	if err := l.command(fmt.Sprintf("PASS %s\n", password)); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	l.log.Debug("logged in")
	return nil
}

// requestData switches the adapter into raw data mode.
func (l *LAN) requestData() error {
	if err := l.command(dataCommand); err != nil {
		return fmt.Errorf("%w: %v", ErrDataRequestRejected, err)
	}
	l.log.Debug("data stream requested")
	return nil
}

// command sends cmd and reads one reply line, which must start with "+OK".
func (l *LAN) command(cmd string) error {
	if _, err := io.WriteString(l.conn, cmd); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	line, err := l.r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if !strings.HasPrefix(line, ackPrefix) {
		return fmt.Errorf("reply %q", strings.TrimSpace(line))
	}
	return nil
}

func (l *LAN) Name() string { return "lan " + l.addr }

// Read returns raw stream bytes, including any already buffered during the
// handshake.
func (l *LAN) Read(p []byte) (int, error)  { return l.r.Read(p) }
func (l *LAN) Write(p []byte) (int, error) { return l.conn.Write(p) }
func (l *LAN) Close() error                { return l.conn.Close() }
