package vbus

import (
	"fmt"
	"strings"
)

func formatByte(b byte) string { return fmt.Sprintf("0x%02x", b) }

func dumpLine(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "    %s: %s\n", padDots(label, 11), value)
}

func padDots(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(".", width-len(s))
}

// DumpPV1 renders a PV1 frame field by field, including the raw and
// unstuffed value of every payload byte. catalog may be nil.
func DumpPV1(f RawFrame, catalog *Catalog) string {
	h, err := DecodeHeader(f)
	if err != nil {
		return err.Error()
	}
	var b strings.Builder
	name := ""
	if catalog != nil {
		name = catalog.ResolveDevice(h.SourceString())
	}
	dumpLine(&b, "DESTINATION", h.DestinationString())
	dumpLine(&b, "SOURCE", strings.TrimSpace(h.SourceString()+" "+name))
	dumpLine(&b, "PROTOCOL", h.Version.String())
	dumpLine(&b, "COMMAND", h.CommandString())
	dumpLine(&b, "FRAMES", fmt.Sprint(h.FrameCount))
	dumpLine(&b, "CHECKSUM", formatByte(h.Checksum))

	payload := make([]string, 0, 4*h.FrameCount)
	for i := 0; i < h.FrameCount; i++ {
		start := HeaderSize + i*ChunkSize
		if start+ChunkSize > len(f) {
			dumpLine(&b, "TRUNCATED", fmt.Sprintf("frame %d of %d", i+1, h.FrameCount))
			break
		}
		chunk := f[start : start+ChunkSize]
		data := Unstuff(chunk)
		for j := 0; j < 4; j++ {
			dumpLine(&b, fmt.Sprintf("NB%d", i*4+j+1), formatByte(chunk[j])+" - "+formatByte(data[j]))
			payload = append(payload, formatByte(data[j]))
		}
		dumpLine(&b, fmt.Sprintf("SEPTET%d", i+1), formatByte(chunk[4]))
		dumpLine(&b, fmt.Sprintf("CHECKSUM%d", i+1), formatByte(chunk[5]))
	}
	dumpLine(&b, "PAYLOAD", strings.Join(payload, " "))
	return b.String()
}

// pv2Labels names the fixed 15 byte layout of a PV2 datagram.
var pv2Labels = []string{
	"DEST1", "DEST2", "SOURCE1", "SOURCE2", "PROTOCOL",
	"COMMAND1", "COMMAND2", "ID1", "ID2",
	"VALUE1", "VALUE2", "VALUE3", "VALUE4",
	"SEPTET", "CHECKSUM",
}

// DumpPV2 renders the raw bytes of a PV2 datagram. PV2 values are not
// decoded.
func DumpPV2(f RawFrame) string {
	var b strings.Builder
	for i, label := range pv2Labels {
		if i >= len(f) {
			break
		}
		dumpLine(&b, label, formatByte(f[i]))
	}
	return b.String()
}
