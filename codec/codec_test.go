package codec

import (
	"math"
	"testing"

	"github.com/notargets/imgconform/format"
	"github.com/notargets/imgconform/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fmtOf(o format.ChannelOrder, t format.ChannelType) format.Format {
	return format.Format{Order: o, Type: t}
}

func TestEncodeOpaqueRed(t *testing.T) {
	b, err := Codec{}.Encode(Pixel{1, 0, 0, 1}, fmtOf(format.RGBA, format.UNormInt8))
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0, 0, 255}, b)
}

func TestChannelOrderSwizzle(t *testing.T) {
	p := Pixel{1, 0.5, 0, 1}
	tests := []struct {
		order format.ChannelOrder
		want  []byte
	}{
		{format.RGBA, []byte{255, 128, 0, 255}},
		{format.BGRA, []byte{0, 128, 255, 255}},
		{format.ARGB, []byte{255, 255, 128, 0}},
		{format.ABGR, []byte{255, 0, 128, 255}},
		{format.RA, []byte{255, 255}},
		{format.A, []byte{255}},
		{format.Rx, []byte{255, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.order.String(), func(t *testing.T) {
			f := fmtOf(tt.order, format.UNormInt8)
			b, err := Codec{}.Encode(p, f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b)
		})
	}
}

func TestDecodeFillsMissingChannels(t *testing.T) {
	c := Codec{}
	p, err := c.Decode([]byte{51}, fmtOf(format.R, format.UNormInt8))
	require.NoError(t, err)
	assert.Equal(t, Pixel{0.2, 0, 0, 1}, p)

	p, err = c.Decode([]byte{51}, fmtOf(format.A, format.UNormInt8))
	require.NoError(t, err)
	assert.Equal(t, Pixel{0, 0, 0, 0.2}, p)

	p, err = c.Decode([]byte{51}, fmtOf(format.Intensity, format.UNormInt8))
	require.NoError(t, err)
	assert.Equal(t, Pixel{0.2, 0.2, 0.2, 0.2}, p)

	p, err = c.Decode([]byte{51}, fmtOf(format.Luminance, format.UNormInt8))
	require.NoError(t, err)
	assert.Equal(t, Pixel{0.2, 0.2, 0.2, 1}, p)

	_, err = c.Decode([]byte{1, 2}, fmtOf(format.RGBA, format.UNormInt8))
	assert.Error(t, err)
}

func TestNormalizedRoundsToEven(t *testing.T) {
	c := Codec{}
	b, err := c.Encode(Pixel{0.5}, fmtOf(format.R, format.UNormInt8))
	require.NoError(t, err)
	assert.Equal(t, []byte{128}, b)

	b, err = c.Encode(Pixel{0.5}, fmtOf(format.R, format.UNormInt16))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x80}, b)

	// Out of range values clamp, NaN stores zero
	b, err = c.Encode(Pixel{-2, 3, math.NaN(), 0}, fmtOf(format.RGBA, format.SNormInt8))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x81, 0x7f, 0, 0}, b)

	p, err := c.Decode([]byte{0x80}, fmtOf(format.R, format.SNormInt8))
	require.NoError(t, err)
	assert.Equal(t, -1.0, p[0])
}

func TestIntegersSaturate(t *testing.T) {
	c := Codec{}
	b, err := c.Encode(Pixel{300, -300}, fmtOf(format.RG, format.SignedInt8))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7f, 0x80}, b)

	b, err = c.Encode(Pixel{-5, 70000}, fmtOf(format.RG, format.UnsignedInt16))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0xff, 0xff}, b)

	b, err = c.Encode(Pixel{-1}, fmtOf(format.R, format.SignedInt32))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, b)
}

func TestPackedFormats(t *testing.T) {
	c := Codec{}
	tests := []struct {
		typ  format.ChannelType
		p    Pixel
		want []byte
	}{
		{format.UNormShort565, Pixel{1, 0, 1, 1}, []byte{0x1f, 0xf8}},
		{format.UNormShort555, Pixel{0, 1, 0, 1}, []byte{0xe0, 0x03}},
		{format.UNormInt101010, Pixel{1, 0, 0, 1}, []byte{0, 0, 0xf0, 0x3f}},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			f := fmtOf(format.RGB, tt.typ)
			b, err := c.Encode(tt.p, f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b)

			p, err := c.Decode(b, f)
			require.NoError(t, err)
			assert.Equal(t, tt.p, p)
		})
	}
}

func TestFloatStorage(t *testing.T) {
	c := Codec{}
	f := fmtOf(format.R, format.Float)
	b, err := c.Encode(Pixel{1.5}, f)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0xc0, 0x3f}, b)

	b, err = c.Encode(Pixel{2.5}, fmtOf(format.R, format.HalfFloat))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x41}, b)
}

func TestTolerance(t *testing.T) {
	const eps = 1e-15
	assert.InDelta(t, 0.6/255, Tolerance(fmtOf(format.RGBA, format.UNormInt8), 0, 0.5), eps)
	assert.InDelta(t, 0.6/32767, Tolerance(fmtOf(format.RGBA, format.SNormInt16), 3, 0.5), eps)
	assert.InDelta(t, 0.6/63, Tolerance(fmtOf(format.RGB, format.UNormShort565), 1, 0.5), eps)
	assert.InDelta(t, 0.6/31, Tolerance(fmtOf(format.RGB, format.UNormShort565), 2, 0.5), eps)
	assert.Zero(t, Tolerance(fmtOf(format.RGBA, format.Float), 0, 0.5))
	assert.Zero(t, Tolerance(fmtOf(format.RGBA, format.SignedInt16), 0, 12))
	assert.Equal(t, 0x1p-10, Tolerance(fmtOf(format.RGBA, format.HalfFloat), 0, 1.0))
	assert.Equal(t, 0x1p-24, Tolerance(fmtOf(format.RGBA, format.HalfFloat), 0, 0))

	srgb := Tolerance(fmtOf(format.SRGBA, format.UNormInt8), 0, 0.5)
	assert.Greater(t, srgb, 0.0)
	assert.Less(t, srgb, 0.6*2/255)
	assert.InDelta(t, 0.6/255, Tolerance(fmtOf(format.SRGBA, format.UNormInt8), 3, 0.5), eps)
}

func TestRandomPixelRoundTrips(t *testing.T) {
	rng := random.New(99)
	for _, c := range []Codec{{Rounding: RoundToNearestEven}, {Rounding: RoundTowardZero}} {
		for _, f := range format.StandardFormats() {
			for i := 0; i < 20; i++ {
				p, b, err := c.RandomPixel(rng, f)
				require.NoError(t, err, f.String())
				got, err := c.Encode(p, f)
				require.NoError(t, err)
				require.Equal(t, b, got, "%v %v %v", c.Rounding, f, p)
			}
		}
	}
}

func TestStoredChannels(t *testing.T) {
	assert.Equal(t, [4]bool{true, false, false, true}, StoredChannels(format.RA))
	assert.Equal(t, [4]bool{true, false, false, false}, StoredChannels(format.Rx))
	assert.Equal(t, [4]bool{true, true, true, true}, StoredChannels(format.BGRA))
}
