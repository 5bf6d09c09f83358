package asb

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// NumericMode selects how multi-byte sensor values are combined.
type NumericMode int

const (
	// NumericCorrected decodes big-endian unsigned and two's-complement values.
	NumericCorrected NumericMode = iota

	// NumericLegacy reproduces the arithmetic of the legacy aSysBus
	// decoder, which ANDs the shifted bytes together instead of ORing them.
	// Only useful when comparing output against that decoder.
	NumericLegacy
)

// String returns the config name of the mode.
func (m NumericMode) String() string {
	switch m {
	case NumericCorrected:
		return "corrected"
	case NumericLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("NumericMode(%d)", int(m))
	}
}

// ParseNumericMode parses "corrected" or "legacy". An empty string is corrected.
func ParseNumericMode(s string) (NumericMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "corrected":
		return NumericCorrected, nil
	case "legacy":
		return NumericLegacy, nil
	default:
		return NumericCorrected, fmt.Errorf("unknown numeric mode %q (want corrected or legacy)", s)
	}
}

func (m NumericMode) unsigned16(hi, lo byte) int64 {
	if m == NumericLegacy {
		return PairToUnsigned16(hi, lo)
	}
	return int64(Uint16(hi, lo))
}

func (m NumericMode) signed16(hi, lo byte) int64 {
	if m == NumericLegacy {
		return PairToSigned16(hi, lo)
	}
	return int64(Int16(hi, lo))
}

func (m NumericMode) unsigned32(b []byte) int64 {
	if m == NumericLegacy {
		return QuadToUnsigned32(b[0], b[1], b[2], b[3])
	}
	return int64(Uint32(b[0], b[1], b[2], b[3]))
}

// Legacy combination helpers. They keep the exact results of the legacy
// decoder, including that ANDing disjoint bit ranges yields zero for every input.

// PairToUnsigned16 computes (a1<<8) & a2.
func PairToUnsigned16(a1, a2 byte) int64 {
	return (int64(a1) << 8) & int64(a2)
}

// PairToSigned16 applies the legacy sign rule to PairToUnsigned16:
// values strictly above 2^15 become 1-(v-2^15).
func PairToSigned16(a1, a2 byte) int64 {
	v := PairToUnsigned16(a1, a2)
	if v > 1<<15 {
		v = 1 - (v - 1<<15)
	}
	return v
}

// QuadToUnsigned32 computes (a1<<24) & (a2<<16) & (a3<<8) & a4.
func QuadToUnsigned32(a1, a2, a3, a4 byte) int64 {
	return (int64(a1) << 24) & (int64(a2) << 16) & (int64(a3) << 8) & int64(a4)
}

// QuadToSigned32 applies the legacy sign rule to QuadToUnsigned32 with a
// threshold of 2^31.
func QuadToSigned32(a1, a2, a3, a4 byte) int64 {
	v := QuadToUnsigned32(a1, a2, a3, a4)
	if v > 1<<31 {
		v = 1 - (v - 1<<31)
	}
	return v
}

// Uint16 combines two big-endian bytes.
func Uint16(hi, lo byte) uint16 {
	return binary.BigEndian.Uint16([]byte{hi, lo})
}

// Int16 combines two big-endian bytes as a two's-complement value.
func Int16(hi, lo byte) int16 {
	return int16(Uint16(hi, lo))
}

// Uint32 combines four big-endian bytes.
func Uint32(a1, a2, a3, a4 byte) uint32 {
	return binary.BigEndian.Uint32([]byte{a1, a2, a3, a4})
}

// Int32 combines four big-endian bytes as a two's-complement value.
func Int32(a1, a2, a3, a4 byte) int32 {
	return int32(Uint32(a1, a2, a3, a4))
}

// formatTenths renders v/10 the way the bus tools print floats: shortest
// form, always with a fractional part ("21.5", "20.0", "-0.5").
func formatTenths(v int64) string {
	s := strconv.FormatFloat(float64(v)/10, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
