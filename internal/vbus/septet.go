package vbus

import "fmt"

// Unstuff restores the high bit of the four data bytes of a payload chunk
// from the septet byte at chunk[4]. chunk[5] (the chunk checksum) is ignored.
func Unstuff(chunk []byte) [4]byte {
	var out [4]byte
	septet := chunk[4]
	for j := 0; j < 4; j++ {
		out[j] = chunk[j]
		if septet&(1<<j) != 0 {
			out[j] |= 0x80
		}
	}
	return out
}

// Stuff is the inverse of Unstuff: it clears bit 7 of every data byte,
// records it in the septet and appends the chunk checksum.
func Stuff(data [4]byte) [ChunkSize]byte {
	var chunk [ChunkSize]byte
	var septet byte
	for j := 0; j < 4; j++ {
		if data[j]&0x80 != 0 {
			septet |= 1 << j
		}
		chunk[j] = data[j] & 0x7F
	}
	chunk[4] = septet
	chunk[5] = Checksum(chunk[:5])
	return chunk
}

// DecodePayload unstuffs every PV1 payload chunk of frame.
func DecodePayload(frame RawFrame, h Header) ([]byte, error) {
	need := HeaderSize + h.FrameCount*ChunkSize
	if len(frame) < need {
		return nil, fmt.Errorf("%w: have %d bytes, header announces %d", ErrTruncatedPayload, len(frame), need)
	}
	payload := make([]byte, 0, 4*h.FrameCount)
	for i := 0; i < h.FrameCount; i++ {
		start := HeaderSize + i*ChunkSize
		data := Unstuff(frame[start : start+ChunkSize])
		payload = append(payload, data[:]...)
	}
	return payload, nil
}

// EncodeFrame builds a complete PV1 message, sync byte included, carrying
// payload. payload is zero-padded to a multiple of four bytes.
func EncodeFrame(dest, src, cmd uint16, payload []byte) []byte {
	frames := (len(payload) + 3) / 4
	out := make([]byte, 0, 1+HeaderSize+frames*ChunkSize)
	out = append(out, SyncByte,
		byte(dest), byte(dest>>8),
		byte(src), byte(src>>8),
		0x10,
		byte(cmd), byte(cmd>>8),
		byte(frames),
	)
	out = append(out, Checksum(out[1:]))
	for i := 0; i < frames; i++ {
		var data [4]byte
		copy(data[:], payload[i*4:min(len(payload), i*4+4)])
		chunk := Stuff(data)
		out = append(out, chunk[:]...)
	}
	return out
}
