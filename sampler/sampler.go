package sampler

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/notargets/imgconform/config"
	"github.com/notargets/imgconform/device"
	"github.com/notargets/imgconform/format"
	"github.com/notargets/imgconform/geometry"
	"github.com/notargets/imgconform/random"
)

// ErrSamplingExhausted is returned when no legal size was found within
// the retry budget
var ErrSamplingExhausted = errors.New("size sampling exhausted")

// Extents swept by the small-image policy, upper bounds exclusive
const (
	smallMaxWidth  = 13
	smallMaxHeight = 9
	smallMaxDepth  = 9
)

// Random sizes are drawn from [randomMinExtent, limit/randomLimitDivisor]
const (
	randomMinExtent    = 16
	randomLimitDivisor = 32
	maxRowPadding      = 64
	maxSlicePadRows    = 4
	// memoryHeadroom leaves room for the result and staging buffers
	memoryHeadroom = 3
)

// Sampler produces image descriptors that fit a device
type Sampler struct {
	Limits device.DeviceLimitSet
	Config config.TestConfig
	Rand   random.Source
	Logger *slog.Logger
}

// New returns a Sampler; a nil logger uses slog.Default
func New(limits device.DeviceLimitSet, cfg config.TestConfig, rng random.Source, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{Limits: limits, Config: cfg, Rand: rng, Logger: logger}
}

// axisLimit is the largest extent the device allows on a logical axis
func (s *Sampler) axisLimit(t geometry.ImageType, axis int) uint64 {
	if t == geometry.Image1DBuffer && axis == 0 {
		return s.Limits.MaxBufferSize
	}
	return s.Limits.Axis(axis, t.ArrayAxis())
}

// build makes a tight descriptor from logical extents
func build(t geometry.ImageType, f format.Format, e [3]uint64) (*geometry.ImageDescriptor, error) {
	switch t {
	case geometry.Image1DArray:
		return geometry.NewDescriptor(t, f, e[0], 0, 0, e[1])
	case geometry.Image2DArray:
		return geometry.NewDescriptor(t, f, e[0], e[1], 0, e[2])
	default:
		return geometry.NewDescriptor(t, f, e[0], e[1], e[2], 0)
	}
}

func (s *Sampler) fits(size uint64, limits device.DeviceLimitSet) bool {
	return size <= limits.MaxAllocSize && size <= limits.MaxGlobalMemSize/memoryHeadroom
}

// Small sweeps every extent in the small range, tightly packed. With
// pitches enabled each row carries one extra pixel of padding.
func (s *Sampler) Small(t geometry.ImageType, f format.Format) ([]*geometry.ImageDescriptor, error) {
	bounds := [3]uint64{smallMaxWidth, 2, 2}
	axes := t.ActiveAxes()
	if axes > 1 {
		bounds[1] = smallMaxHeight
	}
	if axes > 2 {
		bounds[2] = smallMaxDepth
	}
	for axis := range bounds {
		bounds[axis] = min(bounds[axis], s.axisLimit(t, axis)+1)
	}

	var out []*geometry.ImageDescriptor
	for z := uint64(1); z < bounds[2]; z++ {
		for y := uint64(1); y < bounds[1]; y++ {
			for x := uint64(1); x < bounds[0]; x++ {
				d, err := build(t, f, [3]uint64{x, y, z})
				if err != nil {
					return nil, err
				}
				if s.Config.EnableMipmaps && t != geometry.Image1DBuffer {
					d.NumMipLevels = geometry.MaxLevelsFor(d.Width, max(d.Height, 1), max(d.Depth, 1))
				} else if s.Config.EnablePitch && t != geometry.Image1DBuffer {
					s.padPitches(d, d.PixelSize, 0)
				}
				out = append(out, d)
			}
		}
	}
	return out, nil
}

// MaxSizes returns the boundary sizes: every combination of {limit,
// limit-1, limit/128, 1} per active axis, with the largest axis halved
// until the image fits in memory. Duplicates are dropped.
func (s *Sampler) MaxSizes(t geometry.ImageType, f format.Format) ([]*geometry.ImageDescriptor, error) {
	ps, err := format.PixelSize(f)
	if err != nil {
		return nil, err
	}
	axes := t.ActiveAxes()
	var candidates [3][]uint64
	for axis := 0; axis < 3; axis++ {
		if axis >= axes {
			candidates[axis] = []uint64{1}
			continue
		}
		limit := s.axisLimit(t, axis)
		seen := make(map[uint64]bool)
		for _, v := range []uint64{limit, limit - 1, limit / 128, 1} {
			if v >= 1 && v <= limit && !seen[v] {
				seen[v] = true
				candidates[axis] = append(candidates[axis], v)
			}
		}
	}

	var out []*geometry.ImageDescriptor
	seen := make(map[[3]uint64]bool)
	for _, z := range candidates[2] {
		for _, y := range candidates[1] {
			for _, x := range candidates[0] {
				e := [3]uint64{x, y, z}
				for !s.fits(e[0]*e[1]*e[2]*ps, s.Limits) {
					largest := 0
					for axis := 1; axis < 3; axis++ {
						if e[axis] > e[largest] {
							largest = axis
						}
					}
					if e[largest] == 1 {
						return nil, fmt.Errorf("%w: a single %d byte pixel does not fit", ErrSamplingExhausted, ps)
					}
					e[largest] /= 2
				}
				if seen[e] {
					continue
				}
				seen[e] = true
				d, err := build(t, f, e)
				if err != nil {
					return nil, err
				}
				out = append(out, d)
			}
		}
	}
	return out, nil
}

// padPitches widens the row pitch by extra bytes, rounded up to a
// whole pixel, and adds padRows rows to the slice pitch of 3D and 2D
// array images
func (s *Sampler) padPitches(d *geometry.ImageDescriptor, extra, padRows uint64) {
	row := d.Width*d.PixelSize + extra
	if rem := row % d.PixelSize; rem != 0 {
		row += d.PixelSize - rem
	}
	d.RowPitch = row
	switch d.Type {
	case geometry.Image1DArray:
		d.SlicePitch = row
	case geometry.Image2DArray, geometry.Image3D:
		d.SlicePitch = row * (d.Height + padRows)
	default:
		d.SlicePitch = 0
	}
}

// Random draws one descriptor with log-uniform extents in
// [16, limit/32] that fits the iteration memory budget. Pitch padding
// and mip levels are added when enabled. Draws are rejected until the
// image fits, at most Config.MaxRetries times.
func (s *Sampler) Random(t geometry.ImageType, f format.Format) (*geometry.ImageDescriptor, error) {
	budget := s.Limits.Budget(s.Config.BudgetDivisor)
	axes := t.ActiveAxes()

	var lo, hi [3]uint64
	for axis := 0; axis < 3; axis++ {
		lo[axis], hi[axis] = 1, 1
		if axis < axes {
			hi[axis] = max(s.axisLimit(t, axis)/randomLimitDivisor, 1)
			lo[axis] = min(randomMinExtent, hi[axis])
		}
	}

	smallest, err := build(t, f, lo)
	if err != nil {
		return nil, err
	}
	if !s.fits(smallest.AllocationSize(), budget) {
		return nil, fmt.Errorf("%w: smallest %v image needs %d bytes, budget is %d alloc / %d global",
			ErrSamplingExhausted, t, smallest.AllocationSize(), budget.MaxAllocSize, budget.MaxGlobalMemSize)
	}

	for attempt := 0; attempt < s.Config.MaxRetries; attempt++ {
		var e [3]uint64
		for axis := range e {
			e[axis] = s.Rand.LogUniform(lo[axis], hi[axis])
		}
		d, err := build(t, f, e)
		if err != nil {
			return nil, err
		}
		switch {
		case s.Config.EnableMipmaps && t != geometry.Image1DBuffer:
			levels := geometry.MaxLevelsFor(d.Width, max(d.Height, 1), max(d.Depth, 1))
			if levels >= 2 {
				d.NumMipLevels = uint32(s.Rand.LogUniform(2, uint64(levels)))
			}
		case s.Config.EnablePitch && t != geometry.Image1DBuffer:
			s.padPitches(d, s.Rand.Uniform(0, maxRowPadding), s.Rand.Uniform(0, maxSlicePadRows))
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if s.fits(d.AllocationSize(), budget) {
			s.Logger.Debug("sampled image", "image", d.String(), "bytes", d.AllocationSize(), "attempts", attempt+1)
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no %v %v image fit in %d attempts", ErrSamplingExhausted, t, f, s.Config.MaxRetries)
}

// Descriptors streams the images selected by the configured policy.
// The stream stops after the first error.
func (s *Sampler) Descriptors(t geometry.ImageType, f format.Format) iter.Seq2[*geometry.ImageDescriptor, error] {
	return func(yield func(*geometry.ImageDescriptor, error) bool) {
		var list []*geometry.ImageDescriptor
		var err error
		switch s.Config.Policy() {
		case config.Small:
			list, err = s.Small(t, f)
		case config.Max:
			list, err = s.MaxSizes(t, f)
		default:
			for i := 0; i < s.Config.Iterations; i++ {
				d, err := s.Random(t, f)
				if !yield(d, err) || err != nil {
					return
				}
			}
			return
		}
		if err != nil {
			yield(nil, err)
			return
		}
		for _, d := range list {
			if !yield(d, nil) {
				return
			}
		}
	}
}
