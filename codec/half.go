package codec

import (
	"math"

	"github.com/x448/float16"
)

// RoundingMode is the float to half conversion rounding used by both the
// reference encoder and the comparator
type RoundingMode int

const (
	RoundToNearestEven RoundingMode = iota
	RoundTowardZero
)

func (m RoundingMode) String() string {
	if m == RoundTowardZero {
		return "rtz"
	}
	return "rte"
}

// HalfFromFloat32 converts f to half precision bits
func HalfFromFloat32(f float32, mode RoundingMode) uint16 {
	if mode == RoundTowardZero {
		return halfRTZ(f)
	}
	return float16.Fromfloat32(f).Bits()
}

// HalfToFloat32 widens half precision bits; every half is exact in float32
func HalfToFloat32(h uint16) float32 {
	return float16.Frombits(h).Float32()
}

func halfRTZ(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int32(b>>23) & 0xff
	mant := b & 0x7fffff

	if exp == 0xff {
		if mant != 0 {
			return sign | 0x7e00 | uint16(mant>>13)
		}
		return sign | 0x7c00
	}
	e := exp - 127 + 15
	switch {
	case e >= 0x1f:
		// Truncation never reaches infinity
		return sign | 0x7bff
	case e <= 0:
		if e < -10 {
			return sign
		}
		m := mant | 0x800000
		return sign | uint16(m>>uint32(14-e))
	}
	return sign | uint16(e)<<10 | uint16(mant>>13)
}

// halfULP is the spacing of half values around v
func halfULP(v float64) float64 {
	a := math.Abs(v)
	if a < 0x1p-14 {
		return 0x1p-24
	}
	if a >= 65504 {
		return 32
	}
	_, e := math.Frexp(a)
	return math.Ldexp(1, e-1-10)
}
