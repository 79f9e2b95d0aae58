package compare

import (
	"encoding/binary"
	"testing"

	"github.com/notargets/imgconform/codec"
	"github.com/notargets/imgconform/format"
	"github.com/notargets/imgconform/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rgba8 = format.Format{Order: format.RGBA, Type: format.UNormInt8}

func newImage(t *testing.T, f format.Format, w, h uint64) *geometry.ImageDescriptor {
	t.Helper()
	d, err := geometry.NewDescriptor(geometry.Image2D, f, w, h, 0, 0)
	require.NoError(t, err)
	return d
}

// fill stores value(x,y) into every pixel of buf
func fill(t *testing.T, buf geometry.PixelBuffer, d *geometry.ImageDescriptor, value func(x, y uint64) []byte) {
	t.Helper()
	e := d.Extents()
	for y := uint64(0); y < e[1]; y++ {
		for x := uint64(0); x < e[0]; x++ {
			p, err := geometry.Pixel(buf, d, x, y, 0, 0)
			require.NoError(t, err)
			copy(p, value(x, y))
		}
	}
}

func constant(b []byte) func(x, y uint64) []byte {
	return func(uint64, uint64) []byte { return b }
}

func unique(x, y uint64) []byte {
	v := byte(y*16 + x)
	return []byte{v, v + 1, v + 2, v + 3}
}

func TestConstantFillMatches(t *testing.T) {
	d := newImage(t, rgba8, 4, 4)
	red, err := codec.Codec{}.Encode(codec.Pixel{1, 0, 0, 1}, rgba8)
	require.NoError(t, err)

	expected, actual := geometry.NewHostBuffer(d), geometry.NewHostBuffer(d)
	fill(t, expected, d, constant(red))
	fill(t, actual, d, constant(red))

	c := New(d)
	assert.Equal(t, Exact, c.Mode)
	assert.NoError(t, c.Compare(expected, actual, d.FullRegion(0)))
	assert.NoError(t, c.CompareReference(repeat(codec.Pixel{1, 0, 0, 1}, 16), actual, d.FullRegion(0)))
}

func repeat(p codec.Pixel, n int) []codec.Pixel {
	out := make([]codec.Pixel, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func TestComparesAcrossDifferentPitches(t *testing.T) {
	d := newImage(t, rgba8, 5, 3)
	padded := d.Clone()
	padded.RowPitch = 32
	require.NoError(t, padded.Validate())

	expected, actual := geometry.NewHostBuffer(d), geometry.NewHostBuffer(padded)
	fill(t, expected, d, unique)
	fill(t, actual, padded, unique)
	// Padding bytes are never compared
	for y := uint64(0); y < 3; y++ {
		for i := uint64(20); i < 32; i++ {
			actual.Data[y*32+i] = 0xee
		}
	}
	assert.NoError(t, New(d).Compare(expected, actual, d.FullRegion(0)))
}

func TestFirstMismatchIsReportedSymmetrically(t *testing.T) {
	d := newImage(t, rgba8, 6, 6)
	a, b := geometry.NewHostBuffer(d), geometry.NewHostBuffer(d)
	fill(t, a, d, unique)
	fill(t, b, d, unique)
	p, err := geometry.Pixel(b, d, 2, 3, 0, 0)
	require.NoError(t, err)
	p[1] ^= 0xff
	p, err = geometry.Pixel(b, d, 4, 5, 0, 0)
	require.NoError(t, err)
	p[0] ^= 0xff

	c := New(d, WithDiagnostics(nil))
	r := d.FullRegion(0)
	for _, err := range []error{c.Compare(a, b, r), c.Compare(b, a, r)} {
		require.ErrorIs(t, err, ErrMismatch)
		var m *Mismatch
		require.ErrorAs(t, err, &m)
		assert.Equal(t, uint64(2), m.X)
		assert.Equal(t, uint64(3), m.Y)
		assert.Equal(t, 1, m.Lane)
		assert.Equal(t, uint64(3*6+2), m.VectorIndex)
		assert.False(t, m.Hypothesis.Found)
		assert.Equal(t, noHypothesis, m.Hypothesis.Description)
	}

	// A region that avoids the first bad pixel finds the second one
	sub := geometry.RegionSpec{Origin: [3]uint64{3, 4, 0}, Region: [3]uint64{3, 2, 1}}
	err = c.Compare(a, b, sub)
	var m *Mismatch
	require.ErrorAs(t, err, &m)
	assert.Equal(t, uint64(4), m.X)
	assert.Equal(t, uint64(5), m.Y)
	assert.Equal(t, uint64(1*3+1), m.VectorIndex)
}

func TestOffsetSearchFindsShiftedRow(t *testing.T) {
	d := newImage(t, rgba8, 8, 4)
	expected, actual := geometry.NewHostBuffer(d), geometry.NewHostBuffer(d)
	fill(t, expected, d, unique)
	fill(t, actual, d, func(x, y uint64) []byte { return unique(min(x+1, 7), y) })

	err := New(d).Compare(expected, actual, d.FullRegion(0))
	var m *Mismatch
	require.ErrorAs(t, err, &m)
	assert.Equal(t, uint64(0), m.X)
	assert.True(t, m.Hypothesis.Found)
	assert.Equal(t, int64(1), m.Hypothesis.DX)
	assert.Equal(t, int64(0), m.Hypothesis.DY)

	// Rows read one row late
	fill(t, actual, d, func(x, y uint64) []byte { return unique(x, min(y+1, 3)) })
	err = New(d).Compare(expected, actual, d.FullRegion(0))
	require.ErrorAs(t, err, &m)
	assert.True(t, m.Hypothesis.Found)
	assert.Equal(t, int64(0), m.Hypothesis.DX)
	assert.Equal(t, int64(1), m.Hypothesis.DY)

	// Garbage has no explanation
	fill(t, actual, d, constant([]byte{0xde, 0xad, 0xbe, 0xef}))
	err = New(d).Compare(expected, actual, d.FullRegion(0))
	require.ErrorAs(t, err, &m)
	assert.False(t, m.Hypothesis.Found)
}

func TestTolerantHalfAndFloat(t *testing.T) {
	half := format.Format{Order: format.R, Type: format.HalfFloat}
	d := newImage(t, half, 2, 1)
	assert.Equal(t, Tolerant, ModeFor(half))

	h := func(bits ...uint16) geometry.PixelBuffer {
		buf := geometry.NewHostBuffer(d)
		for i, v := range bits {
			binary.LittleEndian.PutUint16(buf.Data[2*i:], v)
		}
		return buf
	}
	c := New(d)
	r := d.FullRegion(0)
	assert.NoError(t, c.Compare(h(0x3c00, 0x7e00), h(0x3c01, 0x7e01), r))
	assert.ErrorIs(t, c.Compare(h(0x3c00, 0), h(0x3c02, 0), r), ErrMismatch)
	assert.ErrorIs(t, c.Compare(h(0x7c00, 0), h(0x7bff, 0), r), ErrMismatch)

	fl := format.Format{Order: format.R, Type: format.Float}
	fd := newImage(t, fl, 1, 1)
	f := func(bits uint32) geometry.PixelBuffer {
		buf := geometry.NewHostBuffer(fd)
		binary.LittleEndian.PutUint32(buf.Data, bits)
		return buf
	}
	fc := New(fd)
	fr := fd.FullRegion(0)
	assert.NoError(t, fc.Compare(f(0x7fc00000), f(0x7fc00001), fr))
	assert.ErrorIs(t, fc.Compare(f(0x3f800000), f(0x3f800001), fr), ErrMismatch)
	assert.ErrorIs(t, fc.Compare(f(0x7fc00000), f(0x3f800000), fr), ErrMismatch)
}

func TestCompareReferenceNormalizedTolerance(t *testing.T) {
	r8 := format.Format{Order: format.R, Type: format.UNormInt8}
	d := newImage(t, r8, 1, 1)
	c := New(d)
	r := d.FullRegion(0)
	buf := geometry.NewHostBuffer(d)

	ref := []codec.Pixel{{0.5, 0, 0, 1}}
	for _, stored := range []byte{127, 128} {
		buf.Data[0] = stored
		assert.NoError(t, c.CompareReference(ref, buf, r), "stored %d", stored)
	}
	buf.Data[0] = 126
	err := c.CompareReference(ref, buf, r)
	var m *Mismatch
	require.ErrorAs(t, err, &m)
	assert.Equal(t, 0, m.Lane)
	assert.Equal(t, []byte{128}, m.Expected)

	// Out of range references clamp before comparison
	buf.Data[0] = 255
	assert.NoError(t, c.CompareReference([]codec.Pixel{{1.3, 0, 0, 1}}, buf, r))

	assert.Error(t, c.CompareReference(nil, buf, r))
}

func TestRegionBufferAgainstFullImage(t *testing.T) {
	d := newImage(t, rgba8, 10, 10)
	full := geometry.NewHostBuffer(d)
	fill(t, full, d, unique)

	r := geometry.RegionSpec{Origin: [3]uint64{2, 3, 0}, Region: [3]uint64{4, 5, 1}}
	staged := geometry.NewRegionBuffer(d, r)
	require.NoError(t, geometry.CopyRegion(staged, full, d, r))
	c := New(d)
	assert.NoError(t, c.Compare(full, staged, r))

	bad := r
	bad.Origin[0] = 7
	assert.ErrorIs(t, c.Compare(full, staged, bad), geometry.ErrOutOfBounds)
}
