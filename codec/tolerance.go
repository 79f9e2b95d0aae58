package codec

import (
	"math"

	"github.com/notargets/imgconform/format"
	"github.com/notargets/imgconform/random"
)

// normalizedULPs is how far a stored normalized value may sit from the
// unquantized reference. Correct rounding gives 0.5; implementations
// are allowed a little slack on the rounding mode.
const normalizedULPs = 0.6

// Tolerance returns the largest absolute difference allowed between the
// reference value of a logical channel and the value decoded from the
// device. Exact types return 0.
func Tolerance(f format.Format, channel int, value float64) float64 {
	if pc, ok := packedCodecs[f.Type]; ok {
		if channel > 2 {
			return 0
		}
		return normalizedULPs / float64(uint32(1)<<pc.bits[channel]-1)
	}
	switch f.Type {
	case format.HalfFloat:
		return halfULP(value)
	case format.Float:
		return 0
	}
	cc := channelCodecs[f.Type]
	if cc.scale == 0 {
		return 0
	}
	tol := normalizedULPs / cc.scale
	if f.Order == format.SRGBA && channel < 3 {
		// Apply the allowance in the encoded space and map it back
		v := math.Min(math.Max(value, 0), 1)
		s := srgbEncode(v)
		lo := srgbDecode(math.Max(s-tol, 0))
		hi := srgbDecode(math.Min(s+tol, 1))
		return math.Max(v-lo, hi-v)
	}
	return tol
}

// RandomPixel draws a pixel whose stored form is exactly representable,
// returning both the value and its stored bytes
func (c Codec) RandomPixel(rng random.Source, f format.Format) (Pixel, []byte, error) {
	ps, err := format.PixelSize(f)
	if err != nil {
		return Pixel{}, nil, err
	}
	b := make([]byte, ps)

	if pc, ok := packedCodecs[f.Type]; ok {
		var word uint32
		for ch := 0; ch < 3; ch++ {
			word |= uint32(rng.Uniform(0, uint64(1)<<pc.bits[ch]-1)) << pc.shifts[ch]
		}
		if pc.size == 2 {
			le.PutUint16(b, uint16(word))
		} else {
			le.PutUint32(b, word)
		}
	} else {
		cc := channelCodecs[f.Type]
		for i, logical := range layouts[f.Order] {
			if logical < 0 {
				continue
			}
			randomChannel(rng, f.Type, b[i*cc.size:(i+1)*cc.size])
		}
	}
	p, err := c.Decode(b, f)
	if err != nil {
		return Pixel{}, nil, err
	}
	if f.Order == format.SRGBA {
		// The transfer function may not invert bit-exactly
		b, err = c.Encode(p, f)
		if err != nil {
			return Pixel{}, nil, err
		}
	}
	return p, b, nil
}

func randomChannel(rng random.Source, t format.ChannelType, dst []byte) {
	switch t {
	case format.UNormInt8, format.SignedInt8, format.UnsignedInt8:
		dst[0] = uint8(rng.Uniform(0, math.MaxUint8))
	case format.SNormInt8:
		// -128 decodes to -1 like -127 and would not survive a round trip
		dst[0] = uint8(int8(int64(rng.Uniform(0, 254)) - 127))
	case format.UNormInt16, format.SignedInt16, format.UnsignedInt16:
		le.PutUint16(dst, uint16(rng.Uniform(0, math.MaxUint16)))
	case format.SNormInt16:
		le.PutUint16(dst, uint16(int16(int64(rng.Uniform(0, 65534))-32767)))
	case format.SignedInt32, format.UnsignedInt32:
		le.PutUint32(dst, uint32(rng.Uniform(0, math.MaxUint32)))
	case format.HalfFloat:
		h := uint16(rng.Uniform(0, math.MaxUint16))
		if h&0x7c00 == 0x7c00 {
			// Keep the sign and mantissa, force a finite exponent
			h &^= 0x4000
		}
		le.PutUint16(dst, h)
	case format.Float:
		bits := uint32(rng.Uniform(0, math.MaxUint32))
		if bits&0x7f800000 == 0x7f800000 {
			bits &^= 0x40000000
		}
		le.PutUint32(dst, bits)
	}
}

// Representable returns the value a correct device stores for p before
// rounding to the format's precision: normalized channels are clamped,
// integer channels rounded and saturated, float channels rounded to
// single precision. Half channels are left to the half tolerance.
func Representable(p Pixel, f format.Format) Pixel {
	lo, hi := 0.0, 1.0
	switch f.Type {
	case format.SNormInt8, format.SNormInt16:
		lo = -1
	case format.Float:
		for ch := range p {
			p[ch] = float64(float32(p[ch]))
		}
		return p
	case format.HalfFloat:
		return p
	case format.SignedInt8:
		return saturatePixel(p, math.MinInt8, math.MaxInt8)
	case format.SignedInt16:
		return saturatePixel(p, math.MinInt16, math.MaxInt16)
	case format.SignedInt32:
		return saturatePixel(p, math.MinInt32, math.MaxInt32)
	case format.UnsignedInt8:
		return saturatePixel(p, 0, math.MaxUint8)
	case format.UnsignedInt16:
		return saturatePixel(p, 0, math.MaxUint16)
	case format.UnsignedInt32:
		return saturatePixel(p, 0, math.MaxUint32)
	}
	for ch := range p {
		if math.IsNaN(p[ch]) {
			p[ch] = 0
		}
		p[ch] = math.Min(math.Max(p[ch], lo), hi)
	}
	return p
}

func saturatePixel(p Pixel, lo, hi float64) Pixel {
	for ch := range p {
		p[ch] = saturate(p[ch], lo, hi)
	}
	return p
}
