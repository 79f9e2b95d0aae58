package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/notargets/imgconform/format"
)

// Pixel is the host-side value of one pixel in logical R, G, B, A order
type Pixel [4]float64

type channelCodec struct {
	size   int
	encode func(dst []byte, v float64, mode RoundingMode)
	decode func(src []byte) float64
	// scale maps [0,1] or [-1,1] onto the codes of normalized types
	scale float64
}

type packedCodec struct {
	size   int
	bits   [3]uint
	shifts [3]uint
}

var le = binary.LittleEndian

var channelCodecs = map[format.ChannelType]channelCodec{
	format.UNormInt8: {
		size:   1,
		encode: func(dst []byte, v float64, _ RoundingMode) { dst[0] = uint8(quantize(v, 0, 1, 255)) },
		decode: func(src []byte) float64 { return float64(src[0]) / 255 },
		scale:  255,
	},
	format.UNormInt16: {
		size:   2,
		encode: func(dst []byte, v float64, _ RoundingMode) { le.PutUint16(dst, uint16(quantize(v, 0, 1, 65535))) },
		decode: func(src []byte) float64 { return float64(le.Uint16(src)) / 65535 },
		scale:  65535,
	},
	format.SNormInt8: {
		size:   1,
		encode: func(dst []byte, v float64, _ RoundingMode) { dst[0] = uint8(int8(quantize(v, -1, 1, 127))) },
		decode: func(src []byte) float64 { return math.Max(-1, float64(int8(src[0]))/127) },
		scale:  127,
	},
	format.SNormInt16: {
		size: 2,
		encode: func(dst []byte, v float64, _ RoundingMode) {
			le.PutUint16(dst, uint16(int16(quantize(v, -1, 1, 32767))))
		},
		decode: func(src []byte) float64 { return math.Max(-1, float64(int16(le.Uint16(src)))/32767) },
		scale:  32767,
	},
	format.SignedInt8: {
		size:   1,
		encode: func(dst []byte, v float64, _ RoundingMode) { dst[0] = uint8(int8(saturate(v, math.MinInt8, math.MaxInt8))) },
		decode: func(src []byte) float64 { return float64(int8(src[0])) },
	},
	format.SignedInt16: {
		size: 2,
		encode: func(dst []byte, v float64, _ RoundingMode) {
			le.PutUint16(dst, uint16(int16(saturate(v, math.MinInt16, math.MaxInt16))))
		},
		decode: func(src []byte) float64 { return float64(int16(le.Uint16(src))) },
	},
	format.SignedInt32: {
		size: 4,
		encode: func(dst []byte, v float64, _ RoundingMode) {
			le.PutUint32(dst, uint32(int32(saturate(v, math.MinInt32, math.MaxInt32))))
		},
		decode: func(src []byte) float64 { return float64(int32(le.Uint32(src))) },
	},
	format.UnsignedInt8: {
		size:   1,
		encode: func(dst []byte, v float64, _ RoundingMode) { dst[0] = uint8(saturate(v, 0, math.MaxUint8)) },
		decode: func(src []byte) float64 { return float64(src[0]) },
	},
	format.UnsignedInt16: {
		size:   2,
		encode: func(dst []byte, v float64, _ RoundingMode) { le.PutUint16(dst, uint16(saturate(v, 0, math.MaxUint16))) },
		decode: func(src []byte) float64 { return float64(le.Uint16(src)) },
	},
	format.UnsignedInt32: {
		size:   4,
		encode: func(dst []byte, v float64, _ RoundingMode) { le.PutUint32(dst, uint32(saturate(v, 0, math.MaxUint32))) },
		decode: func(src []byte) float64 { return float64(le.Uint32(src)) },
	},
	format.HalfFloat: {
		size: 2,
		encode: func(dst []byte, v float64, mode RoundingMode) {
			le.PutUint16(dst, HalfFromFloat32(float32(v), mode))
		},
		decode: func(src []byte) float64 { return float64(HalfToFloat32(le.Uint16(src))) },
	},
	format.Float: {
		size:   4,
		encode: func(dst []byte, v float64, _ RoundingMode) { le.PutUint32(dst, math.Float32bits(float32(v))) },
		decode: func(src []byte) float64 { return float64(math.Float32frombits(le.Uint32(src))) },
	},
}

var packedCodecs = map[format.ChannelType]packedCodec{
	format.UNormShort565:  {size: 2, bits: [3]uint{5, 6, 5}, shifts: [3]uint{11, 5, 0}},
	format.UNormShort555:  {size: 2, bits: [3]uint{5, 5, 5}, shifts: [3]uint{10, 5, 0}},
	format.UNormInt101010: {size: 4, bits: [3]uint{10, 10, 10}, shifts: [3]uint{20, 10, 0}},
}

// quantize clamps v to [lo,hi], scales it and rounds to nearest even.
// NaN encodes as zero.
func quantize(v, lo, hi, scale float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.RoundToEven(math.Min(math.Max(v, lo), hi) * scale)
}

// saturate rounds v and clamps it to the integer range [lo,hi]
func saturate(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(math.RoundToEven(v), lo), hi)
}

// layouts maps each stored channel to its logical RGBA index; -1 marks
// a padding channel that is written as zero and ignored on read
var layouts = map[format.ChannelOrder][]int{
	format.R:         {0},
	format.A:         {3},
	format.RG:        {0, 1},
	format.RA:        {0, 3},
	format.RGB:       {0, 1, 2},
	format.RGBA:      {0, 1, 2, 3},
	format.SRGBA:     {0, 1, 2, 3},
	format.BGRA:      {2, 1, 0, 3},
	format.ARGB:      {3, 0, 1, 2},
	format.ABGR:      {3, 2, 1, 0},
	format.Intensity: {0},
	format.Luminance: {0},
	format.Depth:     {0},
	format.Rx:        {0, -1},
	format.RGx:       {0, 1, -1},
	format.RGBx:      {0, 1, 2, -1},
}

// Codec converts between Pixels and stored bytes
type Codec struct {
	Rounding RoundingMode
}

// Encode returns the stored bytes of p in format f
func (c Codec) Encode(p Pixel, f format.Format) ([]byte, error) {
	ps, err := format.PixelSize(f)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, ps)
	return dst, c.EncodeInto(dst, p, f)
}

// EncodeInto writes the stored bytes of p into dst, which must hold one pixel
func (c Codec) EncodeInto(dst []byte, p Pixel, f format.Format) error {
	ps, err := format.PixelSize(f)
	if err != nil {
		return err
	}
	if uint64(len(dst)) < ps {
		return fmt.Errorf("%d byte destination for a %d byte %v pixel", len(dst), ps, f)
	}
	if f.Order == format.SRGBA {
		p = linearToSRGB(p)
	}
	if pc, ok := packedCodecs[f.Type]; ok {
		var word uint32
		for ch := 0; ch < 3; ch++ {
			word |= uint32(quantize(p[ch], 0, 1, float64(uint32(1)<<pc.bits[ch]-1))) << pc.shifts[ch]
		}
		if pc.size == 2 {
			le.PutUint16(dst, uint16(word))
		} else {
			le.PutUint32(dst, word)
		}
		return nil
	}

	cc := channelCodecs[f.Type]
	for i, logical := range layouts[f.Order] {
		slot := dst[i*cc.size : (i+1)*cc.size]
		if logical < 0 {
			clear(slot)
			continue
		}
		cc.encode(slot, p[logical], c.Rounding)
	}
	return nil
}

// Decode reads one stored pixel. Channels absent from the order read as
// 0 except alpha, which reads as 1.
func (c Codec) Decode(b []byte, f format.Format) (Pixel, error) {
	ps, err := format.PixelSize(f)
	if err != nil {
		return Pixel{}, err
	}
	if uint64(len(b)) < ps {
		return Pixel{}, fmt.Errorf("%d byte source for a %d byte %v pixel", len(b), ps, f)
	}
	p := Pixel{0, 0, 0, 1}

	if pc, ok := packedCodecs[f.Type]; ok {
		var word uint32
		if pc.size == 2 {
			word = uint32(le.Uint16(b))
		} else {
			word = le.Uint32(b)
		}
		for ch := 0; ch < 3; ch++ {
			mask := uint32(1)<<pc.bits[ch] - 1
			p[ch] = float64((word>>pc.shifts[ch])&mask) / float64(mask)
		}
		return p, nil
	}

	cc := channelCodecs[f.Type]
	for i, logical := range layouts[f.Order] {
		if logical < 0 {
			continue
		}
		p[logical] = cc.decode(b[i*cc.size : (i+1)*cc.size])
	}
	switch f.Order {
	case format.Intensity:
		p = Pixel{p[0], p[0], p[0], p[0]}
	case format.Luminance:
		p = Pixel{p[0], p[0], p[0], 1}
	case format.SRGBA:
		p = sRGBToLinear(p)
	}
	return p, nil
}

// StoredChannels returns, for each logical channel, whether the order
// stores it. Intensity and luminance replicate one stored value.
func StoredChannels(order format.ChannelOrder) [4]bool {
	var s [4]bool
	for _, logical := range layouts[order] {
		if logical >= 0 {
			s[logical] = true
		}
	}
	return s
}

func srgbEncode(l float64) float64 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*math.Pow(l, 1/2.4) - 0.055
}

func srgbDecode(s float64) float64 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return math.Pow((s+0.055)/1.055, 2.4)
}

func linearToSRGB(p Pixel) Pixel {
	for ch := 0; ch < 3; ch++ {
		p[ch] = srgbEncode(math.Min(math.Max(p[ch], 0), 1))
	}
	return p
}

func sRGBToLinear(p Pixel) Pixel {
	for ch := 0; ch < 3; ch++ {
		p[ch] = srgbDecode(p[ch])
	}
	return p
}
