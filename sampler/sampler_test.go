package sampler

import (
	"testing"

	"github.com/notargets/imgconform/config"
	"github.com/notargets/imgconform/device"
	"github.com/notargets/imgconform/format"
	"github.com/notargets/imgconform/geometry"
	"github.com/notargets/imgconform/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rgba8 = format.Format{Order: format.RGBA, Type: format.UNormInt8}

// maxSource always draws the top of every range
type maxSource struct{ calls int }

func (m *maxSource) Uniform(lo, hi uint64) uint64    { m.calls++; return hi }
func (m *maxSource) LogUniform(lo, hi uint64) uint64 { m.calls++; return hi }
func (m *maxSource) Float64() float64                { return 0.999 }

func bigLimits() device.DeviceLimitSet {
	return device.DeviceLimitSet{
		MaxWidth: 8192, MaxHeight: 8192, MaxDepth: 2048, MaxArraySize: 2048,
		MaxAllocSize: 1 << 32, MaxGlobalMemSize: 1 << 34, MaxBufferSize: 65536,
	}
}

func TestRandomRespectsAllocationBound(t *testing.T) {
	cfg := config.Default()
	cfg.BudgetDivisor = 1
	limits := device.DeviceLimitSet{
		MaxWidth: 512, MaxHeight: 512, MaxDepth: 512, MaxArraySize: 512,
		MaxAllocSize: 1024, MaxGlobalMemSize: 1 << 20, MaxBufferSize: 1 << 16,
	}
	s := New(limits, cfg, random.New(11), nil)
	for i := 0; i < cfg.Iterations; i++ {
		d, err := s.Random(geometry.Image2D, rgba8)
		require.NoError(t, err)
		assert.LessOrEqual(t, d.Width*d.Height*4, uint64(1024))
		assert.LessOrEqual(t, d.Width*4*4, uint64(1024))
	}

	limits.MaxWidth = 8192
	s = New(limits, cfg, random.New(12), nil)
	for i := 0; i < cfg.Iterations; i++ {
		d, err := s.Random(geometry.Image1D, rgba8)
		require.NoError(t, err)
		assert.LessOrEqual(t, d.AllocationSize(), uint64(1024))
		assert.LessOrEqual(t, d.Width, uint64(256))
	}
}

func TestRandomExtentsAndPitches(t *testing.T) {
	cfg := config.Default()
	cfg.EnablePitch = true
	s := New(bigLimits(), cfg, random.New(5), nil)
	for _, typ := range geometry.ImageTypes() {
		t.Run(typ.String(), func(t *testing.T) {
			for i := 0; i < 50; i++ {
				d, err := s.Random(typ, rgba8)
				require.NoError(t, err)
				require.NoError(t, d.Validate())

				e := d.Extents()
				for axis := 0; axis < typ.ActiveAxes(); axis++ {
					assert.GreaterOrEqual(t, e[axis], uint64(16))
					assert.LessOrEqual(t, e[axis], s.axisLimit(typ, axis)/32)
				}
				assert.Zero(t, d.RowPitch%d.PixelSize)
				if typ != geometry.Image1DBuffer {
					assert.LessOrEqual(t, d.RowPitch, d.Width*4+64+4)
				}
				if typ == geometry.Image1DArray {
					assert.Equal(t, d.RowPitch, d.SlicePitch)
				}
				assert.LessOrEqual(t, d.AllocationSize(), bigLimits().Budget(4).MaxAllocSize)
			}
		})
	}
}

func TestRandomMipmaps(t *testing.T) {
	cfg := config.Default()
	cfg.EnableMipmaps = true
	cfg.EnablePitch = true
	s := New(bigLimits(), cfg, random.New(8), nil)
	for i := 0; i < 50; i++ {
		d, err := s.Random(geometry.Image3D, rgba8)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d.NumMipLevels, uint32(2))
		assert.LessOrEqual(t, d.NumMipLevels, geometry.MaxLevelsFor(d.Width, d.Height, d.Depth))
		// Mipmapped images are always tightly packed
		assert.Equal(t, d.Width*4, d.RowPitch)
		assert.Equal(t, d.RowPitch*d.Height, d.SlicePitch)
	}
}

func TestRandomFailsFastWhenNothingFits(t *testing.T) {
	cfg := config.Default()
	limits := bigLimits()
	limits.MaxAllocSize = 100
	src := &maxSource{}
	s := New(limits, cfg, src, nil)
	_, err := s.Random(geometry.Image2D, rgba8)
	assert.ErrorIs(t, err, ErrSamplingExhausted)
	assert.Zero(t, src.calls)
}

func TestRandomRetryCap(t *testing.T) {
	cfg := config.Default()
	cfg.MaxRetries = 5
	cfg.BudgetDivisor = 1
	limits := bigLimits()
	// 16x16 fits, the 256x256 maximum never does
	limits.MaxAllocSize = 16 * 16 * 4
	src := &maxSource{}
	s := New(limits, cfg, src, nil)
	_, err := s.Random(geometry.Image2D, rgba8)
	assert.ErrorIs(t, err, ErrSamplingExhausted)
	assert.Equal(t, 5*3, src.calls)
}

func TestSmallSweep(t *testing.T) {
	cfg := config.Default()
	cfg.SmallImages = true
	s := New(bigLimits(), cfg, random.New(1), nil)

	tests := []struct {
		typ   geometry.ImageType
		count int
	}{
		{geometry.Image1D, 12},
		{geometry.Image1DBuffer, 12},
		{geometry.Image2D, 12 * 8},
		{geometry.Image1DArray, 12 * 8},
		{geometry.Image2DArray, 12 * 8 * 8},
		{geometry.Image3D, 12 * 8 * 8},
	}
	for _, tt := range tests {
		list, err := s.Small(tt.typ, rgba8)
		require.NoError(t, err)
		assert.Len(t, list, tt.count, tt.typ.String())
		for _, d := range list {
			assert.Equal(t, d.Width*4, d.RowPitch)
			assert.LessOrEqual(t, d.Width, uint64(12))
		}
	}
	assert.Equal(t, uint64(1), must(s.Small(geometry.Image2D, rgba8))[0].Width)
}

func TestSmallSweepWithPitch(t *testing.T) {
	cfg := config.Default()
	cfg.EnablePitch = true
	s := New(bigLimits(), cfg, random.New(1), nil)
	list, err := s.Small(geometry.Image3D, rgba8)
	require.NoError(t, err)
	for _, d := range list {
		assert.Equal(t, (d.Width+1)*4, d.RowPitch)
		assert.Equal(t, d.RowPitch*d.Height, d.SlicePitch)
	}
}

func TestMaxSizesFitMemory(t *testing.T) {
	limits := bigLimits()
	limits.MaxAllocSize = 1 << 20
	s := New(limits, config.Default(), random.New(1), nil)
	for _, typ := range geometry.ImageTypes() {
		list, err := s.MaxSizes(typ, rgba8)
		require.NoError(t, err)
		require.NotEmpty(t, list)
		seen := make(map[[3]uint64]bool)
		for _, d := range list {
			e := d.Extents()
			assert.False(t, seen[e], "duplicate %v", d)
			seen[e] = true
			assert.LessOrEqual(t, d.AllocationSize(), limits.MaxAllocSize)
			for axis := 0; axis < 3; axis++ {
				assert.LessOrEqual(t, e[axis], max(s.axisLimit(typ, axis), 1))
			}
		}
	}

	// With room to spare the device maximum itself is tried
	list, err := New(bigLimits(), config.Default(), nil, nil).MaxSizes(geometry.Image1D, rgba8)
	require.NoError(t, err)
	widths := make([]uint64, 0, len(list))
	for _, d := range list {
		widths = append(widths, d.Width)
	}
	assert.Equal(t, []uint64{8192, 8191, 64, 1}, widths)
}

func TestDescriptorsPolicies(t *testing.T) {
	cfg := config.Default()
	cfg.Iterations = 7
	s := New(bigLimits(), cfg, random.New(3), nil)
	n := 0
	for d, err := range s.Descriptors(geometry.Image2D, rgba8) {
		require.NoError(t, err)
		require.NotNil(t, d)
		n++
	}
	assert.Equal(t, 7, n)

	n = 0
	for range s.Descriptors(geometry.Image2D, rgba8) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)

	s.Config.SmallImages = true
	n = 0
	for _, err := range s.Descriptors(geometry.Image1D, rgba8) {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 12, n)

	s.Config = config.Default()
	s.Limits.MaxAllocSize = 10
	var errs int
	for d, err := range s.Descriptors(geometry.Image2D, rgba8) {
		assert.Nil(t, d)
		assert.ErrorIs(t, err, ErrSamplingExhausted)
		errs++
	}
	assert.Equal(t, 1, errs)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
