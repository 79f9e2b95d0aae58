package geometry

import (
	"testing"

	"github.com/notargets/imgconform/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDescriptorZeroesUnusedExtents(t *testing.T) {
	tests := []struct {
		typ     ImageType
		extents [3]uint64
		h, d, a uint64
	}{
		{Image1D, [3]uint64{7, 1, 1}, 0, 0, 0},
		{Image1DBuffer, [3]uint64{7, 1, 1}, 0, 0, 0},
		{Image1DArray, [3]uint64{7, 4, 1}, 0, 0, 4},
		{Image2D, [3]uint64{7, 3, 1}, 3, 0, 0},
		{Image2DArray, [3]uint64{7, 3, 4}, 3, 0, 4},
		{Image3D, [3]uint64{7, 3, 2}, 3, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			d, err := NewDescriptor(tt.typ, rgba8, 7, 3, 2, 4)
			require.NoError(t, err)
			assert.Equal(t, tt.h, d.Height)
			assert.Equal(t, tt.d, d.Depth)
			assert.Equal(t, tt.a, d.ArraySize)
			assert.Equal(t, tt.extents, d.Extents())
			assert.Equal(t, uint64(28), d.RowPitch)
			if tt.typ == Image1DArray {
				assert.Equal(t, d.RowPitch, d.SlicePitch)
			}
		})
	}
}

func TestValidateRejectsBrokenInvariants(t *testing.T) {
	base := func() *ImageDescriptor {
		d, err := NewDescriptor(Image2DArray, rgba8, 8, 4, 0, 3)
		require.NoError(t, err)
		return d
	}
	tests := []struct {
		name   string
		mutate func(d *ImageDescriptor)
	}{
		{"ZeroWidth", func(d *ImageDescriptor) { d.Width = 0 }},
		{"ShortRowPitch", func(d *ImageDescriptor) { d.RowPitch = 31 }},
		{"ShortSlicePitch", func(d *ImageDescriptor) { d.SlicePitch = d.RowPitch*d.Height - 1 }},
		{"DepthOnArray", func(d *ImageDescriptor) { d.Depth = 2 }},
		{"WrongPixelSize", func(d *ImageDescriptor) { d.PixelSize = 2 }},
		{"TooManyLevels", func(d *ImageDescriptor) { d.NumMipLevels = 5 }},
		{"PaddedMipmap", func(d *ImageDescriptor) {
			d.NumMipLevels = 2
			d.RowPitch += 4
			d.SlicePitch = d.RowPitch * d.Height
		}},
		{"BufferOnNonBufferImage", func(d *ImageDescriptor) { d.Buffer = &LinearBuffer{Size: 1 << 20} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(d)
			assert.ErrorIs(t, d.Validate(), ErrInvalidDescriptor)
		})
	}
}

func TestValidate1DArraySlicePitch(t *testing.T) {
	d, err := NewDescriptor(Image1DArray, rgba8, 8, 0, 0, 3)
	require.NoError(t, err)
	d.RowPitch = 48
	assert.ErrorIs(t, d.Validate(), ErrInvalidDescriptor)
	d.SlicePitch = 48
	assert.NoError(t, d.Validate())
}

func TestValidateBufferImage(t *testing.T) {
	d, err := NewDescriptor(Image1DBuffer, rgba8, 16, 0, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, d.Buffer)
	d.Buffer = &LinearBuffer{Size: 8}
	assert.ErrorIs(t, d.Validate(), ErrInvalidDescriptor)
}

func TestNewDescriptorUnsupportedFormat(t *testing.T) {
	_, err := NewDescriptor(Image2D, format.Format{Order: format.RGB, Type: format.UNormInt8}, 4, 4, 0, 0)
	assert.ErrorIs(t, err, format.ErrUnsupportedFormat)
}

func TestParseImageType(t *testing.T) {
	for _, typ := range ImageTypes() {
		got, err := ParseImageType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseImageType("4D")
	assert.Error(t, err)
}

func TestRegionChecks(t *testing.T) {
	d, err := NewDescriptor(Image2D, rgba8, 4, 4, 0, 0)
	require.NoError(t, err)

	full := d.FullRegion(0)
	assert.Equal(t, [3]uint64{4, 4, 1}, full.Region)
	assert.NoError(t, d.CheckRegion(full))

	r := RegionSpec{Origin: [3]uint64{1, 0, 0}, Region: [3]uint64{4, 4, 1}}
	assert.ErrorIs(t, d.CheckRegion(r), ErrOutOfBounds)

	r = RegionSpec{Origin: [3]uint64{0, 0, 0}, Region: [3]uint64{0, 4, 1}}
	assert.ErrorIs(t, d.CheckRegion(r), ErrOutOfBounds)

	// Overflowing origins must not wrap around
	r = RegionSpec{Origin: [3]uint64{^uint64(0), 0, 0}, Region: [3]uint64{2, 1, 1}}
	assert.ErrorIs(t, d.CheckRegion(r), ErrOutOfBounds)
}

func TestAPIOriginFoldsLod(t *testing.T) {
	tests := []struct {
		typ  ImageType
		want [4]uint64
	}{
		{Image1D, [4]uint64{1, 2, 0, 0}},
		{Image1DArray, [4]uint64{1, 1, 2, 0}},
		{Image2D, [4]uint64{1, 1, 2, 0}},
		{Image2DArray, [4]uint64{1, 1, 1, 2}},
		{Image3D, [4]uint64{1, 1, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			d, err := NewDescriptor(tt.typ, rgba8, 8, 8, 8, 8)
			require.NoError(t, err)
			r := RegionSpec{Region: [3]uint64{1, 1, 1}, Lod: 2}
			for axis := 0; axis < tt.typ.ActiveAxes(); axis++ {
				r.Origin[axis] = 1
			}
			assert.Equal(t, tt.want, d.APIOrigin(r))
		})
	}
}

func TestAPIRegionPadsUnusedAxes(t *testing.T) {
	tests := []struct {
		typ  ImageType
		want [3]uint64
	}{
		{Image1D, [3]uint64{3, 1, 1}},
		{Image1DArray, [3]uint64{3, 2, 1}},
		{Image2D, [3]uint64{3, 2, 1}},
		{Image2DArray, [3]uint64{3, 2, 5}},
		{Image3D, [3]uint64{3, 2, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			d, err := NewDescriptor(tt.typ, rgba8, 8, 8, 8, 8)
			require.NoError(t, err)
			r := RegionSpec{Region: [3]uint64{3, 2, 5}}
			assert.Equal(t, tt.want, d.APIRegion(r))
		})
	}
}
