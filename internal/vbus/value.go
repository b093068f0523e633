package vbus

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ByteLength returns how many payload bytes a field of bitSize occupies.
// Spec files store bitSize as the highest bit index, hence the +1.
func ByteLength(bitSize int) int {
	if bitSize < 0 {
		return 0
	}
	return (bitSize + 1 + 7) / 8
}

// SignedValue decodes payload[offset:offset+n] as a little-endian two's
// complement integer. The range is clamped to the payload; an empty range
// decodes to zero.
func SignedValue(payload []byte, offset, n int) *big.Int {
	if offset < 0 || offset >= len(payload) || n <= 0 {
		return new(big.Int)
	}
	end := offset + n
	if end > len(payload) {
		end = len(payload)
	}
	b := payload[offset:end]

	// big.Int.SetBytes wants big-endian.
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	raw := new(big.Int).SetBytes(be)

	bits := uint(8 * len(b))
	if raw.Bit(int(bits)-1) == 1 {
		raw.Sub(raw, new(big.Int).Lsh(big.NewInt(1), bits))
	}
	return raw
}

// Scale multiplies v by factor exactly.
func Scale(v *big.Int, factor decimal.Decimal) decimal.Decimal {
	return decimal.NewFromBigInt(v, 0).Mul(factor)
}

// FormatValue renders d keeping its scale, so 200 × 0.1 prints as "20.0".
func FormatValue(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}
