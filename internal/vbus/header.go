package vbus

import "fmt"

// ProtocolVersion is the VBUS protocol variant carried in header byte 4.
type ProtocolVersion int

const (
	Unknown ProtocolVersion = iota
	PV1
	PV2
	PV3
)

func (v ProtocolVersion) String() string {
	switch v {
	case PV1:
		return "PV1"
	case PV2:
		return "PV2"
	case PV3:
		return "PV3"
	default:
		return "UNKNOWN"
	}
}

func versionFromByte(b byte) ProtocolVersion {
	switch b {
	case 0x10:
		return PV1
	case 0x20:
		return PV2
	case 0x30:
		return PV3
	default:
		return Unknown
	}
}

// Header is the fixed-position part of a frame.
//
// Byte layout (after the sync byte):
//
//	0-1  destination (LE)
//	2-3  source (LE)
//	4    protocol version
//	5-6  command (LE)
//	7    frame count
//	8    header checksum
type Header struct {
	Destination uint16
	Source      uint16
	Command     uint16
	Version     ProtocolVersion
	FrameCount  int
	Checksum    byte
}

// DecodeHeader reads the header fields of frame.
func DecodeHeader(frame RawFrame) (Header, error) {
	if len(frame) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}
	return Header{
		Destination: uint16(frame[1])<<8 | uint16(frame[0]),
		Source:      uint16(frame[3])<<8 | uint16(frame[2]),
		Version:     versionFromByte(frame[4]),
		Command:     uint16(frame[6])<<8 | uint16(frame[5]),
		FrameCount:  int(frame[7]),
		Checksum:    frame[8],
	}, nil
}

func formatAddress(v uint16) string { return fmt.Sprintf("0x%04x", v) }

func (h Header) SourceString() string      { return formatAddress(h.Source) }
func (h Header) DestinationString() string { return formatAddress(h.Destination) }
func (h Header) CommandString() string     { return formatAddress(h.Command) }

// Checksum computes the VBUS 7-bit checksum over b. It is exposed for
// encoding; received checksums are not verified.
func Checksum(b []byte) byte {
	crc := byte(0x7F)
	for _, v := range b {
		crc = (crc - v) & 0x7F
	}
	return crc
}
