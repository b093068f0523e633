package transport

import (
	"encoding/binary"
	"math"
	"math/rand"
	"sync"

	"github.com/shaunagostinho/vbusreader/internal/vbus"
)

// Addresses used by the simulated controller. They match the DeltaSol BS
// Plus entry in spec/DeltaSolBSPlus.json.
const (
	DemoSource      = 0x4221
	DemoDestination = 0x0010
	DemoCommand     = 0x0100
)

// Demo simulates a DeltaSol BS Plus broadcasting its status packet on the
// bus, each one followed by a PV2 datagram.
type Demo struct {
	mu      sync.Mutex
	pending []byte
	t       float64 // virtual time accumulator
	hours   uint16
	wh      uint32
	closed  bool
}

func NewDemo() *Demo { return &Demo{hours: 1234} }

func (d *Demo) Name() string { return "demo (simulated DeltaSol BS Plus)" }

// Read hands out the simulated stream in chunks of at most len(p) bytes,
// generating a new message whenever the previous one has been consumed.
func (d *Demo) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	if len(d.pending) == 0 {
		d.pending = d.next()
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *Demo) Write(p []byte) (int, error) { return len(p), nil }

func (d *Demo) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// next returns the status packet followed by a PV2 datagram.
func (d *Demo) next() []byte {
	d.t += 1
	msg := vbus.EncodeFrame(DemoDestination, DemoSource, DemoCommand, d.payload())
	pv2 := vbus.EncodeFrame(DemoDestination, DemoSource, 0x0200, []byte{0x00, 0x00, 0x00, 0x00})
	pv2[5] = 0x20
	return append(msg, pv2...)
}

func (d *Demo) payload() []byte {
	// Collector swings with a slow "sun" curve, the store lags behind.
	sun := math.Max(0, math.Sin(d.t*0.01))
	collector := 15 + 70*sun + rand.Float64()*2
	storeTop := 35 + 25*sun + rand.Float64()
	storeBottom := 25 + 15*sun + rand.Float64()
	outdoor := -5 + 10*sun + rand.Float64()

	pump := uint8(0)
	if collector-storeBottom > 6 {
		pump = uint8(math.Min(100, 30+(collector-storeBottom)*2))
		d.wh += uint32(pump)
		if int(d.t)%60 == 0 {
			d.hours++
		}
	}

	b := make([]byte, 28)
	putTemp(b[0:], collector)
	putTemp(b[2:], storeBottom)
	putTemp(b[4:], storeTop)
	putTemp(b[6:], outdoor)
	b[8] = pump
	b[9] = 0
	if pump > 0 {
		b[10] = 0x01
	}
	binary.LittleEndian.PutUint16(b[16:], d.hours)
	binary.LittleEndian.PutUint16(b[20:], uint16(d.wh%1000))
	binary.LittleEndian.PutUint16(b[22:], uint16(d.wh/1000%1000))
	binary.LittleEndian.PutUint16(b[24:], uint16(d.wh/1000000))
	binary.LittleEndian.PutUint16(b[26:], 201) // firmware 2.01
	return b
}

// putTemp stores c in tenths of a degree as a signed 16 bit value.
func putTemp(b []byte, c float64) {
	binary.LittleEndian.PutUint16(b, uint16(int16(math.Round(c*10))))
}
