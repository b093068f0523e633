package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/shaunagostinho/vbusreader/internal/vbus"
)

// fakeAdapter plays the LAN adapter side of the handshake on conn.
// replies maps each expected client line to the reply sent back.
func fakeAdapter(t *testing.T, conn net.Conn, hello string, replies map[string]string, stream []byte) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer conn.Close()
		if _, err := io.WriteString(conn, hello); err != nil {
			done <- err
			return
		}
		r := bufio.NewReader(conn)
		for i := 0; i < 2; i++ {
			line, err := r.ReadString('\n')
			if err != nil {
				done <- err
				return
			}
			reply, ok := replies[line]
			if !ok {
				reply = "-ERROR\n"
			}
			if _, err := io.WriteString(conn, reply); err != nil {
				done <- err
				return
			}
			if !strings.HasPrefix(reply, "+OK") {
				done <- nil
				return
			}
		}
		_, err := conn.Write(stream)
		done <- err
	}()
	return done
}

func TestLANHandshake(t *testing.T) {
	client, server := net.Pipe()
	stream := vbus.EncodeFrame(0x0010, 0x4221, 0x0100, []byte{1, 2, 3, 4})
	done := fakeAdapter(t, server, "+HELLO\n", map[string]string{
		"PASS secret\n": "+OK: Password accepted\n",
		"DATA\n":        "+OK: Data incoming...\n",
	}, stream)

	l, err := newLAN("pipe", client, "secret", zap.NewNop())
	if err != nil {
		t.Fatalf("newLAN: %v", err)
	}
	defer l.Close()

	got := make([]byte, len(stream))
	if _, err := io.ReadFull(l, got); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !bytes.Equal(got, stream) {
		t.Errorf("stream = % X, want % X", got, stream)
	}
	if err := <-done; err != nil {
		t.Errorf("adapter: %v", err)
	}
}

func TestLANHandshakeFailures(t *testing.T) {
	tests := []struct {
		name    string
		hello   string
		replies map[string]string
		wantErr error
	}{
		{
			name:    "bad greeting",
			hello:   "+WELCOME\n",
			wantErr: ErrLoginFailed,
		},
		{
			name:    "wrong password",
			hello:   "+HELLO\n",
			replies: map[string]string{},
			wantErr: ErrLoginFailed,
		},
		{
			name:    "data rejected",
			hello:   "+HELLO\n",
			replies: map[string]string{"PASS vbus\n": "+OK\n"},
			wantErr: ErrDataRequestRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			fakeAdapter(t, server, tt.hello, tt.replies, nil)

			_, err := newLAN("pipe", client, "vbus", zap.NewNop())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenUnknownConnection(t *testing.T) {
	_, err := Open(context.Background(), Config{Connection: "carrier-pigeon"}, nil)
	if !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("err = %v, want ErrUnknownConnection", err)
	}
}

func TestOpenStdin(t *testing.T) {
	src, err := Open(context.Background(), Config{Connection: KindStdin, Stdin: strings.NewReader("abc")}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 8)
	n, err := src.Read(buf)
	if err != nil || string(buf[:n]) != "abc" {
		t.Errorf("Read = %q, %v", buf[:n], err)
	}
	if _, err := src.Write([]byte("x")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Write err = %v, want ErrReadOnly", err)
	}
}

func TestDemoStreamDecodes(t *testing.T) {
	d := NewDemo()
	sync := vbus.NewSynchronizer(d)
	frames, err := sync.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(frames) == 0 {
		t.Fatal("no frames")
	}
	h, err := vbus.DecodeHeader(frames[0])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.Source != DemoSource || h.Version != vbus.PV1 || h.FrameCount != 7 {
		t.Errorf("header = %+v", h)
	}
	if _, err := vbus.DecodePayload(frames[0], h); err != nil {
		t.Errorf("DecodePayload: %v", err)
	}

	d.Close()
	if _, err := d.Read(make([]byte, 4)); !errors.Is(err, ErrClosed) {
		t.Errorf("read after close err = %v", err)
	}
}
