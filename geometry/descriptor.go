package geometry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notargets/imgconform/format"
)

var (
	// ErrInvalidDescriptor reports a descriptor that breaks a layout invariant
	ErrInvalidDescriptor = errors.New("invalid image descriptor")
	// ErrOutOfBounds reports a coordinate or region outside the image
	ErrOutOfBounds = errors.New("out of bounds")
)

// ImageType is the shape of an image
type ImageType int

const (
	Image1D ImageType = iota + 1
	Image2D
	Image3D
	Image1DArray
	Image2DArray
	Image1DBuffer
)

var imageTypeNames = map[ImageType]string{
	Image1D:       "1D",
	Image2D:       "2D",
	Image3D:       "3D",
	Image1DArray:  "1Darray",
	Image2DArray:  "2Darray",
	Image1DBuffer: "1Dbuffer",
}

func (t ImageType) String() string {
	if name, ok := imageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ImageType(%d)", int(t))
}

// ParseImageType accepts the names printed by ImageType.String, case-insensitively
func ParseImageType(s string) (ImageType, error) {
	for t, name := range imageTypeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown image type %q", s)
}

// ImageTypes lists every image type in a fixed order
func ImageTypes() []ImageType {
	return []ImageType{Image1D, Image2D, Image3D, Image1DArray, Image2DArray, Image1DBuffer}
}

// Is1D reports whether rows have no height (1D, 1D array, 1D buffer)
func (t ImageType) Is1D() bool {
	return t == Image1D || t == Image1DArray || t == Image1DBuffer
}

// IsArray reports whether the image has an array-layer axis
func (t ImageType) IsArray() bool {
	return t == Image1DArray || t == Image2DArray
}

// ArrayAxis returns the logical axis holding array layers, or -1
func (t ImageType) ArrayAxis() int {
	switch t {
	case Image1DArray:
		return 1
	case Image2DArray:
		return 2
	}
	return -1
}

// ActiveAxes returns how many of the three logical axes carry an extent > 1
func (t ImageType) ActiveAxes() int {
	switch t {
	case Image1D, Image1DBuffer:
		return 1
	case Image2D, Image1DArray:
		return 2
	default:
		return 3
	}
}

// LinearBuffer is the linear allocation backing a 1D buffer image.
// The descriptor only refers to it; it does not own it.
type LinearBuffer struct {
	Size uint64
}

// ImageDescriptor describes the shape and memory layout of one image
type ImageDescriptor struct {
	Type      ImageType
	Width     uint64
	Height    uint64 // 0 for 1D types
	Depth     uint64 // 0 for non-3D types
	ArraySize uint64 // 0 for non-array types
	Format    format.Format
	PixelSize uint64

	RowPitch   uint64
	SlicePitch uint64

	NumMipLevels uint32 // 0 or 1 means no mipmapping
	Buffer       *LinearBuffer
}

// NewDescriptor builds a descriptor with tightly packed pitches. Extents
// unused by the image type are forced to 0.
func NewDescriptor(imgType ImageType, f format.Format, width, height, depth, arraySize uint64) (*ImageDescriptor, error) {
	ps, err := format.PixelSize(f)
	if err != nil {
		return nil, err
	}
	d := &ImageDescriptor{
		Type:      imgType,
		Format:    f,
		PixelSize: ps,
		Width:     width,
	}
	switch imgType {
	case Image1D, Image1DBuffer:
	case Image1DArray:
		d.ArraySize = arraySize
	case Image2D:
		d.Height = height
	case Image2DArray:
		d.Height = height
		d.ArraySize = arraySize
	case Image3D:
		d.Height = height
		d.Depth = depth
	default:
		return nil, fmt.Errorf("%w: unknown image type %v", ErrInvalidDescriptor, imgType)
	}
	d.SetTightPitches()
	if imgType == Image1DBuffer {
		d.Buffer = &LinearBuffer{Size: d.RowPitch}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// SetTightPitches resets the pitches to width*pixelSize with no padding
func (d *ImageDescriptor) SetTightPitches() {
	d.RowPitch = d.Width * d.PixelSize
	d.SlicePitch = d.tightSlicePitch(d.RowPitch)
}

func (d *ImageDescriptor) tightSlicePitch(rowPitch uint64) uint64 {
	switch d.Type {
	case Image1DArray:
		return rowPitch
	case Image2DArray, Image3D:
		return rowPitch * d.Height
	default:
		return 0
	}
}

// Clone returns a copy that shares the linear buffer reference
func (d *ImageDescriptor) Clone() *ImageDescriptor {
	c := *d
	return &c
}

// Extents returns the per-axis extents in pixels of the base level.
// Array layers occupy axis 1 for 1D arrays and axis 2 for 2D arrays.
func (d *ImageDescriptor) Extents() [3]uint64 {
	switch d.Type {
	case Image1DArray:
		return [3]uint64{d.Width, d.ArraySize, 1}
	case Image2D:
		return [3]uint64{d.Width, d.Height, 1}
	case Image2DArray:
		return [3]uint64{d.Width, d.Height, d.ArraySize}
	case Image3D:
		return [3]uint64{d.Width, d.Height, d.Depth}
	default:
		return [3]uint64{d.Width, 1, 1}
	}
}

// IsArrayAxis reports whether an axis indexes array layers; those axes
// are never halved across mip levels.
func (d *ImageDescriptor) IsArrayAxis(axis int) bool {
	return axis == d.Type.ArrayAxis()
}

// Levels returns the number of mip levels, at least 1
func (d *ImageDescriptor) Levels() uint32 {
	if d.NumMipLevels < 1 {
		return 1
	}
	return d.NumMipLevels
}

// IsMipmapped reports whether the image carries more than one level
func (d *ImageDescriptor) IsMipmapped() bool {
	return d.NumMipLevels > 1
}

func (d *ImageDescriptor) String() string {
	e := d.Extents()
	s := fmt.Sprintf("%v %v %dx%dx%d pitch=%d/%d", d.Type, d.Format, e[0], e[1], e[2],
		d.RowPitch, d.SlicePitch)
	if d.IsMipmapped() {
		s += fmt.Sprintf(" mips=%d", d.NumMipLevels)
	}
	return s
}

// Validate checks every layout invariant of the descriptor
func (d *ImageDescriptor) Validate() error {
	fail := func(msg string, args ...interface{}) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidDescriptor, d.Type, fmt.Sprintf(msg, args...))
	}

	ps, err := format.PixelSize(d.Format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if d.PixelSize != ps {
		return fail("pixel size %d does not match %v (%d)", d.PixelSize, d.Format, ps)
	}
	if d.Width == 0 {
		return fail("width must be at least 1")
	}

	if d.Type.Is1D() {
		if d.Height != 0 {
			return fail("height must be 0, got %d", d.Height)
		}
	} else if d.Height == 0 {
		return fail("height must be at least 1")
	}
	if d.Type == Image3D {
		if d.Depth == 0 {
			return fail("depth must be at least 1")
		}
	} else if d.Depth != 0 {
		return fail("depth must be 0, got %d", d.Depth)
	}
	if d.Type.IsArray() {
		if d.ArraySize == 0 {
			return fail("array size must be at least 1")
		}
	} else if d.ArraySize != 0 {
		return fail("array size must be 0, got %d", d.ArraySize)
	}

	if d.RowPitch < d.Width*d.PixelSize {
		return fail("row pitch %d < width*pixelSize %d", d.RowPitch, d.Width*d.PixelSize)
	}
	switch d.Type {
	case Image1DArray:
		if d.SlicePitch != d.RowPitch {
			return fail("slice pitch %d must equal row pitch %d", d.SlicePitch, d.RowPitch)
		}
	case Image2DArray, Image3D:
		if d.SlicePitch < d.RowPitch*d.Height {
			return fail("slice pitch %d < rowPitch*height %d", d.SlicePitch, d.RowPitch*d.Height)
		}
	default:
		if d.SlicePitch != 0 && d.SlicePitch < d.RowPitch*max(d.Height, 1) {
			return fail("slice pitch %d < rowPitch*height %d", d.SlicePitch, d.RowPitch*max(d.Height, 1))
		}
	}

	if d.IsMipmapped() {
		if d.Type == Image1DBuffer {
			return fail("buffer images cannot be mipmapped")
		}
		e := d.spatialExtents()
		if maxLevels := MaxLevelsFor(e[0], e[1], e[2]); d.NumMipLevels > maxLevels {
			return fail("%d mip levels exceeds maximum %d", d.NumMipLevels, maxLevels)
		}
		if d.RowPitch != d.Width*d.PixelSize || d.SlicePitch != d.tightSlicePitch(d.RowPitch) {
			return fail("mipmapped images require tight pitches")
		}
	}

	if d.Type == Image1DBuffer {
		if d.RowPitch != d.Width*d.PixelSize {
			return fail("buffer images require a tight row pitch")
		}
		if d.Buffer != nil && d.Buffer.Size < d.RowPitch {
			return fail("backing buffer of %d bytes cannot hold %d", d.Buffer.Size, d.RowPitch)
		}
	} else if d.Buffer != nil {
		return fail("only buffer images reference a linear buffer")
	}
	return nil
}

// spatialExtents returns the base extents with array axes collapsed to 1
func (d *ImageDescriptor) spatialExtents() [3]uint64 {
	e := d.Extents()
	for axis := range e {
		if d.IsArrayAxis(axis) {
			e[axis] = 1
		}
	}
	return e
}
