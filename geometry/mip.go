package geometry

import (
	"fmt"
	"iter"
	"math/bits"
)

// DimensionAtLevel halves an extent once per level, never below 1
func DimensionAtLevel(base uint64, lod uint32) uint64 {
	if lod >= 64 {
		return 1
	}
	return max(1, base>>lod)
}

// MaxLevelsFor returns floor(log2(max(w,h,d)))+1, the length of a full
// mip chain for the given extents.
func MaxLevelsFor(width, height, depth uint64) uint32 {
	m := max(width, height, depth)
	if m == 0 {
		return 0
	}
	return uint32(bits.Len64(m))
}

// Level is the layout of one mip level inside a contiguous buffer
type Level struct {
	Lod        uint32
	Extents    [3]uint64
	RowPitch   uint64
	SlicePitch uint64
	Offset     uint64 // sum of the sizes of all lower levels
	Size       uint64
}

// ExtentsAtLevel returns the extents of level lod. Array axes keep their
// layer count on every level.
func (d *ImageDescriptor) ExtentsAtLevel(lod uint32) [3]uint64 {
	e := d.Extents()
	for axis := range e {
		if !d.IsArrayAxis(axis) {
			e[axis] = DimensionAtLevel(e[axis], lod)
		}
	}
	return e
}

// Level returns the layout of level lod. The base level of a
// non-mipmapped image uses the descriptor's pitches; mipmapped levels are
// always tightly packed.
func (d *ImageDescriptor) Level(lod uint32) (Level, error) {
	if lod >= d.Levels() {
		return Level{}, fmt.Errorf("%w: lod %d of %d levels", ErrOutOfBounds, lod, d.Levels())
	}
	var offset uint64
	for l := uint32(0); l < lod; l++ {
		offset += d.levelLayout(l).Size
	}
	lvl := d.levelLayout(lod)
	lvl.Offset = offset
	return lvl, nil
}

func (d *ImageDescriptor) levelLayout(lod uint32) Level {
	e := d.ExtentsAtLevel(lod)
	lvl := Level{Lod: lod, Extents: e}
	if d.IsMipmapped() {
		lvl.RowPitch = e[0] * d.PixelSize
		if d.Type == Image1DArray {
			lvl.SlicePitch = lvl.RowPitch
		} else {
			lvl.SlicePitch = lvl.RowPitch * e[1]
		}
	} else {
		lvl.RowPitch = d.RowPitch
		lvl.SlicePitch = d.SlicePitch
		if lvl.SlicePitch == 0 {
			lvl.SlicePitch = lvl.RowPitch * e[1]
		}
	}
	switch d.Type {
	case Image3D, Image2DArray:
		lvl.Size = lvl.SlicePitch * e[2]
	default:
		lvl.Size = lvl.RowPitch * e[1]
	}
	return lvl
}

// AllLevels yields the layout of every level from 0 upward
func (d *ImageDescriptor) AllLevels() iter.Seq2[uint32, Level] {
	return func(yield func(uint32, Level) bool) {
		var offset uint64
		for lod := uint32(0); lod < d.Levels(); lod++ {
			lvl := d.levelLayout(lod)
			lvl.Offset = offset
			offset += lvl.Size
			if !yield(lod, lvl) {
				return
			}
		}
	}
}

// TotalMippedSize sums the sizes of every level
func (d *ImageDescriptor) TotalMippedSize() uint64 {
	var total uint64
	for _, lvl := range d.AllLevels() {
		total += lvl.Size
	}
	return total
}

// LevelOffset returns the byte offset of level lod in a contiguous
// multi-level buffer.
func (d *ImageDescriptor) LevelOffset(lod uint32) (uint64, error) {
	lvl, err := d.Level(lod)
	if err != nil {
		return 0, err
	}
	return lvl.Offset, nil
}

// AllocationSize returns the bytes needed to hold every level
func (d *ImageDescriptor) AllocationSize() uint64 {
	return d.TotalMippedSize()
}
