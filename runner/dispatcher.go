package runner

import (
	"errors"
	"fmt"

	"github.com/notargets/imgconform/device"
	"github.com/notargets/imgconform/format"
	"github.com/notargets/imgconform/geometry"
	"github.com/notargets/imgconform/sampler"
)

// ErrResource reports that the backing store could not hold an image
var ErrResource = errors.New("image allocation failed")

// Image is one allocated image on a dispatcher. Every transfer names a
// region of one mip level; host buffers carry their own pitches.
type Image interface {
	Desc() *geometry.ImageDescriptor
	// Write copies region r from src into the image
	Write(r geometry.RegionSpec, src geometry.PixelBuffer) error
	// Read copies region r of the image into dst
	Read(r geometry.RegionSpec, dst geometry.PixelBuffer) error
	// Fill stores one encoded pixel into every pixel of region r
	Fill(r geometry.RegionSpec, pixel []byte) error
	Free()
}

// Dispatcher allocates images on some backing store
type Dispatcher interface {
	Name() string
	Allocate(d *geometry.ImageDescriptor) (Image, error)
	Free()
}

// IsConfigurationError reports whether err means the run could not be
// set up, as opposed to the device returning wrong data
func IsConfigurationError(err error) bool {
	for _, target := range []error{
		device.ErrQuery,
		sampler.ErrSamplingExhausted,
		ErrResource,
		format.ErrUnsupportedFormat,
		geometry.ErrInvalidDescriptor,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// FillRegion stores pixel into every pixel of region r of buf
func FillRegion(buf geometry.PixelBuffer, d *geometry.ImageDescriptor, r geometry.RegionSpec, pixel []byte) error {
	if uint64(len(pixel)) != d.PixelSize {
		return fmt.Errorf("fill pixel is %d bytes, %v needs %d", len(pixel), d.Format, d.PixelSize)
	}
	if err := d.CheckRegion(r); err != nil {
		return err
	}
	for z := uint64(0); z < r.Region[2]; z++ {
		for y := uint64(0); y < r.Region[1]; y++ {
			row, err := buf.Row(d.PixelSize, r.Origin[0], r.Origin[1]+y, r.Origin[2]+z, r.Region[0])
			if err != nil {
				return err
			}
			for i := 0; i < len(row); i += len(pixel) {
				copy(row[i:], pixel)
			}
		}
	}
	return nil
}
