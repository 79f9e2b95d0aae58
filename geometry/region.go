package geometry

import "fmt"

// RegionSpec is a box of pixels inside one mip level. Origin and Region
// are in pixels along the three logical axes (see Extents).
type RegionSpec struct {
	Origin [3]uint64
	Region [3]uint64
	Lod    uint32
}

func (r RegionSpec) String() string {
	return fmt.Sprintf("origin=(%d,%d,%d) region=(%d,%d,%d) lod=%d",
		r.Origin[0], r.Origin[1], r.Origin[2], r.Region[0], r.Region[1], r.Region[2], r.Lod)
}

// Pixels returns the number of pixels covered by the region
func (r RegionSpec) Pixels() uint64 {
	return r.Region[0] * r.Region[1] * r.Region[2]
}

// FullRegion covers the whole of level lod
func (d *ImageDescriptor) FullRegion(lod uint32) RegionSpec {
	return RegionSpec{Region: d.ExtentsAtLevel(lod), Lod: lod}
}

// CheckRegion enforces origin+region <= extent on every axis of the
// region's level. Empty regions are rejected.
func (d *ImageDescriptor) CheckRegion(r RegionSpec) error {
	if r.Lod >= d.Levels() {
		return fmt.Errorf("%w: lod %d of %d levels", ErrOutOfBounds, r.Lod, d.Levels())
	}
	e := d.ExtentsAtLevel(r.Lod)
	for axis := 0; axis < 3; axis++ {
		if r.Region[axis] == 0 {
			return fmt.Errorf("%w: empty region on axis %d: %v", ErrOutOfBounds, axis, r)
		}
		if r.Origin[axis] > e[axis] || r.Region[axis] > e[axis]-r.Origin[axis] {
			return fmt.Errorf("%w: %v exceeds extent %d on axis %d", ErrOutOfBounds, r, e[axis], axis)
		}
	}
	return nil
}

// APIOrigin returns the four-component origin the compute API expects,
// with the mip level folded into the first coordinate the image type
// does not use.
func (d *ImageDescriptor) APIOrigin(r RegionSpec) [4]uint64 {
	o := [4]uint64{r.Origin[0], r.Origin[1], r.Origin[2], 0}
	switch d.Type {
	case Image1D, Image1DBuffer:
		o[1] = uint64(r.Lod)
	case Image2D, Image1DArray:
		o[2] = uint64(r.Lod)
	default:
		o[3] = uint64(r.Lod)
	}
	return o
}

// APIRegion returns the region with unused axes set to 1, as passed to
// the compute API.
func (d *ImageDescriptor) APIRegion(r RegionSpec) [3]uint64 {
	reg := r.Region
	for axis := d.Type.ActiveAxes(); axis < 3; axis++ {
		reg[axis] = 1
	}
	return reg
}
