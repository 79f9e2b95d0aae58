package geometry

import "fmt"

// PixelBuffer is a pitched view of host memory holding part or all of
// one mip level. Origin is the image coordinate of the pixel stored at
// Offset, so a region-sized staging buffer and a full-level buffer can
// be addressed with the same image coordinates.
type PixelBuffer struct {
	Data       []byte
	Offset     uint64
	RowPitch   uint64
	SlicePitch uint64
	Origin     [3]uint64
}

// NewHostBuffer allocates a zeroed buffer large enough for every level
// of the image and returns the view of level 0.
func NewHostBuffer(d *ImageDescriptor) PixelBuffer {
	data := make([]byte, d.AllocationSize())
	view, _ := d.View(data, 0)
	return view
}

// View returns the view of level lod inside a contiguous multi-level buffer
func (d *ImageDescriptor) View(data []byte, lod uint32) (PixelBuffer, error) {
	lvl, err := d.Level(lod)
	if err != nil {
		return PixelBuffer{}, err
	}
	if uint64(len(data)) < lvl.Offset+lvl.Size {
		return PixelBuffer{}, fmt.Errorf("%w: %d byte buffer cannot hold level %d (%d+%d)",
			ErrOutOfBounds, len(data), lod, lvl.Offset, lvl.Size)
	}
	return PixelBuffer{
		Data:       data,
		Offset:     lvl.Offset,
		RowPitch:   lvl.RowPitch,
		SlicePitch: lvl.SlicePitch,
	}, nil
}

// NewRegionBuffer allocates a tightly packed buffer holding exactly the
// pixels of region r, addressed by image coordinates.
func NewRegionBuffer(d *ImageDescriptor, r RegionSpec) PixelBuffer {
	rowPitch := r.Region[0] * d.PixelSize
	slicePitch := rowPitch * r.Region[1]
	return PixelBuffer{
		Data:       make([]byte, slicePitch*r.Region[2]),
		RowPitch:   rowPitch,
		SlicePitch: slicePitch,
		Origin:     r.Origin,
	}
}

// PixelAddress returns the byte offset of pixel (x,y,z) of level lod in
// buf, where buf is a view of that level. The coordinate must lie inside
// the level and inside the buffer's own window.
func PixelAddress(buf PixelBuffer, d *ImageDescriptor, x, y, z uint64, lod uint32) (uint64, error) {
	if lod >= d.Levels() {
		return 0, fmt.Errorf("%w: lod %d of %d levels", ErrOutOfBounds, lod, d.Levels())
	}
	e := d.ExtentsAtLevel(lod)
	c := [3]uint64{x, y, z}
	for axis := range c {
		if c[axis] >= e[axis] || c[axis] < buf.Origin[axis] {
			return 0, fmt.Errorf("%w: (%d,%d,%d) at lod %d, extents %v, buffer origin %v",
				ErrOutOfBounds, x, y, z, lod, e, buf.Origin)
		}
	}
	addr := buf.Offset +
		(z-buf.Origin[2])*buf.SlicePitch +
		(y-buf.Origin[1])*buf.RowPitch +
		(x-buf.Origin[0])*d.PixelSize
	if addr+d.PixelSize > uint64(len(buf.Data)) {
		return 0, fmt.Errorf("%w: (%d,%d,%d) at byte %d of a %d byte buffer",
			ErrOutOfBounds, x, y, z, addr, len(buf.Data))
	}
	return addr, nil
}

// Pixel returns the bytes of pixel (x,y,z) of level lod
func Pixel(buf PixelBuffer, d *ImageDescriptor, x, y, z uint64, lod uint32) ([]byte, error) {
	addr, err := PixelAddress(buf, d, x, y, z, lod)
	if err != nil {
		return nil, err
	}
	return buf.Data[addr : addr+d.PixelSize], nil
}

// Row returns the bytes of n pixels starting at (x,y,z). The caller must
// have validated the region with CheckRegion; only buffer capacity is
// checked here.
func (b PixelBuffer) Row(pixelSize, x, y, z, n uint64) ([]byte, error) {
	if x < b.Origin[0] || y < b.Origin[1] || z < b.Origin[2] {
		return nil, fmt.Errorf("%w: row (%d,%d,%d) before buffer origin %v", ErrOutOfBounds, x, y, z, b.Origin)
	}
	start := b.Offset + (z-b.Origin[2])*b.SlicePitch + (y-b.Origin[1])*b.RowPitch + (x-b.Origin[0])*pixelSize
	end := start + n*pixelSize
	if end > uint64(len(b.Data)) {
		return nil, fmt.Errorf("%w: row (%d,%d,%d)+%d ends at byte %d of %d",
			ErrOutOfBounds, x, y, z, n, end, len(b.Data))
	}
	return b.Data[start:end], nil
}

// CopyRegion copies region r between two views of the same level,
// row by row, honouring each view's pitches.
func CopyRegion(dst, src PixelBuffer, d *ImageDescriptor, r RegionSpec) error {
	if err := d.CheckRegion(r); err != nil {
		return err
	}
	for z := uint64(0); z < r.Region[2]; z++ {
		for y := uint64(0); y < r.Region[1]; y++ {
			x0, y0, z0 := r.Origin[0], r.Origin[1]+y, r.Origin[2]+z
			s, err := src.Row(d.PixelSize, x0, y0, z0, r.Region[0])
			if err != nil {
				return err
			}
			t, err := dst.Row(d.PixelSize, x0, y0, z0, r.Region[0])
			if err != nil {
				return err
			}
			copy(t, s)
		}
	}
	return nil
}
