package region

import (
	"fmt"

	"github.com/notargets/imgconform/geometry"
	"github.com/notargets/imgconform/random"
)

// Defaults for Generator
const (
	DefaultSamples   = 8
	DefaultThreshold = 8
)

// Generator produces in-bounds regions of an image: one covering the
// whole level followed by Samples randomized sub-regions.
type Generator struct {
	Rand random.Source
	// Samples is the number of randomized regions per level
	Samples int
	// Axes with an extent at or below Threshold are always covered fully
	Threshold uint64
}

// NewGenerator returns a generator with the default sample count and threshold
func NewGenerator(rng random.Source) *Generator {
	return &Generator{Rand: rng, Samples: DefaultSamples, Threshold: DefaultThreshold}
}

// Full covers the whole of level lod
func (g *Generator) Full(d *geometry.ImageDescriptor, lod uint32) geometry.RegionSpec {
	return d.FullRegion(lod)
}

// span draws the size and start of a region along one axis of the given
// extent. Small axes are covered fully.
func (g *Generator) span(extent uint64) (origin, size uint64) {
	size = extent
	if extent > g.Threshold {
		size = g.Rand.Uniform(max(g.Threshold, 1), extent-1)
	}
	if extent > size {
		origin = g.Rand.Uniform(0, extent-size-1)
	}
	return origin, size
}

// Sample draws one randomized region of level lod
func (g *Generator) Sample(d *geometry.ImageDescriptor, lod uint32) geometry.RegionSpec {
	e := d.ExtentsAtLevel(lod)
	r := geometry.RegionSpec{Lod: lod}
	for axis := range e {
		r.Origin[axis], r.Region[axis] = g.span(e[axis])
	}
	return r
}

// Generate returns the full region of level lod followed by Samples
// randomized regions
func (g *Generator) Generate(d *geometry.ImageDescriptor, lod uint32) []geometry.RegionSpec {
	out := make([]geometry.RegionSpec, 0, g.Samples+1)
	out = append(out, g.Full(d, lod))
	for i := 0; i < g.Samples; i++ {
		out = append(out, g.Sample(d, lod))
	}
	return out
}

// PickLod draws a mip level uniformly from the image's levels
func (g *Generator) PickLod(d *geometry.ImageDescriptor) uint32 {
	return uint32(g.Rand.Uniform(0, uint64(d.Levels()-1)))
}

// CopyRegion is one copy between two images, possibly of different
// shapes and levels. Region is valid at SrcOrigin in the source level
// and at DstOrigin in the destination level.
type CopyRegion struct {
	SrcOrigin [3]uint64
	DstOrigin [3]uint64
	Region    [3]uint64
	SrcLod    uint32
	DstLod    uint32
}

// Src returns the region read from the source image
func (c CopyRegion) Src() geometry.RegionSpec {
	return geometry.RegionSpec{Origin: c.SrcOrigin, Region: c.Region, Lod: c.SrcLod}
}

// Dst returns the region written in the destination image
func (c CopyRegion) Dst() geometry.RegionSpec {
	return geometry.RegionSpec{Origin: c.DstOrigin, Region: c.Region, Lod: c.DstLod}
}

func (c CopyRegion) String() string {
	return fmt.Sprintf("src(%v) -> dst(origin=%v lod=%d)", c.Src(), c.DstOrigin, c.DstLod)
}

// CommonExtents is the per-axis overlap of two levels
func CommonExtents(src, dst *geometry.ImageDescriptor, srcLod, dstLod uint32) [3]uint64 {
	s, d := src.ExtentsAtLevel(srcLod), dst.ExtentsAtLevel(dstLod)
	var c [3]uint64
	for axis := range c {
		c[axis] = min(s[axis], d[axis])
	}
	return c
}

// GenerateCopies returns one copy covering the whole overlap of the two
// images followed by Samples randomized copies. Levels are chosen
// independently for each side.
func (g *Generator) GenerateCopies(src, dst *geometry.ImageDescriptor) []CopyRegion {
	srcLod, dstLod := g.PickLod(src), g.PickLod(dst)
	common := CommonExtents(src, dst, srcLod, dstLod)
	se, de := src.ExtentsAtLevel(srcLod), dst.ExtentsAtLevel(dstLod)

	out := make([]CopyRegion, 0, g.Samples+1)
	out = append(out, CopyRegion{Region: common, SrcLod: srcLod, DstLod: dstLod})
	for i := 0; i < g.Samples; i++ {
		c := CopyRegion{SrcLod: srcLod, DstLod: dstLod}
		for axis := range common {
			_, c.Region[axis] = g.span(common[axis])
			if se[axis] > c.Region[axis] {
				c.SrcOrigin[axis] = g.Rand.Uniform(0, se[axis]-c.Region[axis]-1)
			}
			if de[axis] > c.Region[axis] {
				c.DstOrigin[axis] = g.Rand.Uniform(0, de[axis]-c.Region[axis]-1)
			}
		}
		out = append(out, c)
	}
	return out
}
