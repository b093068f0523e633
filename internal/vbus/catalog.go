package vbus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrMissingMask = errors.New("vbus: device has no mask")

// addressPrefix is the "0x" in front of every address string.
const addressPrefix = 2

// WildcardChar is replaced in template device names by the address digit
// the mask leaves open.
const WildcardChar = "#"

// FieldSpec describes one value inside a packet payload.
type FieldSpec struct {
	Name    string
	Offset  int
	BitSize int
	Factor  decimal.Decimal // multiplies the raw value; catalog files default it to 1
	Unit    string
	HasUnit bool // false when the field had no unit or a structured one
}

// PacketSpec identifies a packet by its addresses and lists its fields.
type PacketSpec struct {
	Source      string
	Destination string
	Command     string
	Fields      []FieldSpec
}

// DeviceSpec maps a (masked) source address to a display name.
type DeviceSpec struct {
	Name    string
	Address string
	Mask    string
}

// Catalog holds the device and packet definitions used for decoding.
// It is not modified after NewCatalog.
type Catalog struct {
	devices []DeviceSpec
	packets []PacketSpec
}

// NewCatalog validates devices and packets and returns an immutable catalog.
// Every device must carry a mask.
func NewCatalog(devices []DeviceSpec, packets []PacketSpec) (*Catalog, error) {
	for _, d := range devices {
		if d.Mask == "" {
			return nil, fmt.Errorf("%w: %q (%s); add a mask to the device definition (0xFFFF or 0xFFF0 for most devices)",
				ErrMissingMask, d.Name, d.Address)
		}
	}
	c := &Catalog{
		devices: append([]DeviceSpec(nil), devices...),
		packets: make([]PacketSpec, len(packets)),
	}
	for i, p := range packets {
		p.Fields = append([]FieldSpec(nil), p.Fields...)
		c.packets[i] = p
	}
	return c, nil
}

func (c *Catalog) Devices() []DeviceSpec { return c.devices }
func (c *Catalog) Packets() []PacketSpec { return c.packets }

// MatchPacket returns the packet spec for h. When several entries share the
// same addresses the last one in catalog order is returned.
func (c *Catalog) MatchPacket(h Header) (PacketSpec, bool) {
	src, dst, cmd := h.SourceString(), h.DestinationString(), h.CommandString()
	var (
		match PacketSpec
		found bool
	)
	for _, p := range c.packets {
		if strings.EqualFold(p.Source, src) &&
			strings.EqualFold(p.Destination, dst) &&
			strings.EqualFold(p.Command, cmd) {
			match, found = p, true
		}
	}
	return match, found
}

// DecodeFields evaluates every field of p against payload.
func DecodeFields(p PacketSpec, payload []byte, useUnits bool) map[string]string {
	out := make(map[string]string, len(p.Fields))
	for _, f := range p.Fields {
		raw := SignedValue(payload, f.Offset, ByteLength(f.BitSize))
		v := FormatValue(Scale(raw, f.Factor))
		if useUnits && f.HasUnit {
			v += f.Unit
		}
		out[f.Name] = v
	}
	return out
}

// compareLength returns how many leading characters of an address the mask
// pins down: everything before the first '0' mask digit after the prefix.
func compareLength(mask string, addrLen int) int {
	n := addrLen
	for i := addressPrefix; i < len(mask) && i < addrLen; i++ {
		if mask[i] == '0' {
			n = i
			break
		}
	}
	return n
}

// ResolveDevice returns the display name for a source address such as
// "0x7321". Devices are checked in catalog order. An unknown address
// resolves to "".
func (c *Catalog) ResolveDevice(source string) string {
	for _, d := range c.devices {
		n := compareLength(d.Mask, len(source))
		if len(d.Address) < n {
			continue
		}
		if !strings.EqualFold(source[:n], d.Address[:n]) {
			continue
		}
		if n >= len(source) {
			return d.Name
		}
		return strings.Replace(d.Name, WildcardChar, strings.ToUpper(source[n:n+1]), 1)
	}
	return ""
}
