package vbus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

const (
	// SyncByte marks the start of every VBUS message.
	SyncByte = 0xAA

	// HeaderSize is the number of bytes after the sync byte needed to decode a header.
	HeaderSize = 9

	// ChunkSize is the size of one PV1 payload frame: 4 data bytes, septet, checksum.
	ChunkSize = 6

	// ReadSize is the maximum number of bytes requested from a ByteSource per read.
	ReadSize = 1024

	// minSyncBytes is how many sync bytes a batch must contain before it is split.
	// The controller cycles several messages; four sync bytes guarantee at least
	// one message bounded on both sides.
	minSyncBytes = 4
)

var (
	ErrShortFrame       = errors.New("vbus: frame shorter than header")
	ErrTruncatedPayload = errors.New("vbus: payload truncated")
)

// ByteSource supplies raw stream bytes. Read may return 0 bytes with a nil
// error when the transport has nothing pending. Write is only used by
// transports for their handshake.
type ByteSource interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// RawFrame is one message with the leading sync byte removed.
type RawFrame []byte

// SplitFrames splits buf on the sync byte. The segment before the first sync
// byte and the trailing (possibly incomplete) segment are discarded.
func SplitFrames(buf []byte) []RawFrame {
	parts := bytes.Split(buf, []byte{SyncByte})
	if len(parts) < 3 {
		return nil
	}
	frames := make([]RawFrame, 0, len(parts)-2)
	for _, p := range parts[1 : len(parts)-1] {
		frames = append(frames, RawFrame(p))
	}
	return frames
}

// Synchronizer accumulates reads from a ByteSource into batches of frames.
type Synchronizer struct {
	src ByteSource
	buf []byte
	rd  []byte
}

func NewSynchronizer(src ByteSource) *Synchronizer {
	return &Synchronizer{
		src: src,
		rd:  make([]byte, ReadSize),
	}
}

// Next reads until the buffer holds at least four sync bytes and returns the
// complete frames in it. The buffer starts empty for every batch.
// A read error is returned only if the bytes read so far do not make up a
// batch; otherwise it surfaces on the next call.
// Cancellation is only observed between reads.
func (s *Synchronizer) Next(ctx context.Context) ([]RawFrame, error) {
	s.buf = s.buf[:0]
	for bytes.Count(s.buf, []byte{SyncByte}) < minSyncBytes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.src.Read(s.rd)
		if n > 0 {
			s.buf = append(s.buf, s.rd[:n]...)
		}
		if err != nil {
			// Bytes returned alongside the error still count.
			if bytes.Count(s.buf, []byte{SyncByte}) >= minSyncBytes {
				break
			}
			return nil, fmt.Errorf("vbus: read: %w", err)
		}
	}
	// Copy out so frames outlive the next batch.
	batch := make([]byte, len(s.buf))
	copy(batch, s.buf)
	return SplitFrames(batch), nil
}
