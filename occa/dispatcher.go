// Package occa runs images on an OCCA device. It links the native OCCA
// library, so it is kept apart from the host-only packages.
package occa

import (
	"fmt"
	"log/slog"
	"math"
	"unsafe"

	"github.com/notargets/gocca"
	"github.com/notargets/imgconform/geometry"
	"github.com/notargets/imgconform/runner"
)

const fillKernelName = "fillRegion"

// fillKernelSource writes one pixel pattern over rows*rowBytes bytes of a
// pitched level. Row r lives at base + (r/height)*slicePitch + (r%height)*rowPitch.
const fillKernelSource = `
@kernel void fillRegion(const int rows,
                        const int height,
                        const int rowBytes,
                        const int pixelSize,
                        const long base,
                        const long rowPitch,
                        const long slicePitch,
                        unsigned char *img,
                        const unsigned char *pixel) {
  for (int row = 0; row < rows; ++row; @outer) {
    for (int t = 0; t < 64; ++t; @inner) {
      const long start = base + (long)(row / height) * slicePitch + (long)(row % height) * rowPitch;
      for (int i = t; i < rowBytes; i += 64) {
        img[start + i] = pixel[i % pixelSize];
      }
    }
  }
}
`

// Dispatcher stores images in OCCA device memory. Images are plain
// linear allocations laid out like the host reference; transfers go row
// by row through offset copies so that pitches are honoured.
type Dispatcher struct {
	Device *gocca.OCCADevice
	Logger *slog.Logger
	fill   *gocca.OCCAKernel
}

// NewDispatcher builds the fill kernel on device
func NewDispatcher(device *gocca.OCCADevice, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var kernel *gocca.OCCAKernel
	var err error
	if device.Mode() == "OpenMP" {
		// OpenMP does not get -O3 by default
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = device.BuildKernelFromString(fillKernelSource, fillKernelName, props)
	} else {
		kernel, err = device.BuildKernelFromString(fillKernelSource, fillKernelName, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", fillKernelName, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", fillKernelName)
	}
	logger.Debug("built fill kernel", "mode", device.Mode())
	return &Dispatcher{Device: device, Logger: logger, fill: kernel}, nil
}

func (o *Dispatcher) Name() string { return "occa/" + o.Device.Mode() }

func (o *Dispatcher) Allocate(d *geometry.ImageDescriptor) (runner.Image, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	size := d.AllocationSize()
	if size > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %v needs %d bytes", runner.ErrResource, d, size)
	}
	mem := o.Device.Malloc(int64(size), nil, nil)
	if mem == nil {
		return nil, fmt.Errorf("%w: device malloc of %d bytes for %v", runner.ErrResource, size, d)
	}
	return &occaImage{disp: o, desc: d, mem: mem}, nil
}

// Free releases the fill kernel; images are freed by their owners
func (o *Dispatcher) Free() {
	if o.fill != nil {
		o.fill.Free()
		o.fill = nil
	}
}

type occaImage struct {
	disp *Dispatcher
	desc *geometry.ImageDescriptor
	mem  *gocca.OCCAMemory
}

func (m *occaImage) Desc() *geometry.ImageDescriptor { return m.desc }

func (m *occaImage) trace(op string, r geometry.RegionSpec) {
	m.disp.Logger.Debug(op, "image", m.desc.String(),
		"origin", m.desc.APIOrigin(r), "region", m.desc.APIRegion(r))
}

// rows walks the device byte offset of each row of region r
func (m *occaImage) rows(r geometry.RegionSpec, visit func(devOffset, y, z uint64) error) error {
	if m.mem == nil {
		return fmt.Errorf("%w: image already freed", runner.ErrResource)
	}
	if err := m.desc.CheckRegion(r); err != nil {
		return err
	}
	lvl, err := m.desc.Level(r.Lod)
	if err != nil {
		return err
	}
	for z := uint64(0); z < r.Region[2]; z++ {
		for y := uint64(0); y < r.Region[1]; y++ {
			iy, iz := r.Origin[1]+y, r.Origin[2]+z
			off := lvl.Offset + iz*lvl.SlicePitch + iy*lvl.RowPitch + r.Origin[0]*m.desc.PixelSize
			if err := visit(off, iy, iz); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *occaImage) Write(r geometry.RegionSpec, src geometry.PixelBuffer) error {
	m.trace("write", r)
	err := m.rows(r, func(off, y, z uint64) error {
		row, err := src.Row(m.desc.PixelSize, r.Origin[0], y, z, r.Region[0])
		if err != nil {
			return err
		}
		m.mem.CopyFromWithOffset(unsafe.Pointer(&row[0]), int64(len(row)), int64(off))
		return nil
	})
	if err != nil {
		return err
	}
	m.disp.Device.Finish()
	return nil
}

func (m *occaImage) Read(r geometry.RegionSpec, dst geometry.PixelBuffer) error {
	m.disp.Device.Finish()
	return m.rows(r, func(off, y, z uint64) error {
		row, err := dst.Row(m.desc.PixelSize, r.Origin[0], y, z, r.Region[0])
		if err != nil {
			return err
		}
		m.mem.CopyToWithOffset(unsafe.Pointer(&row[0]), int64(len(row)), int64(off))
		return nil
	})
}

func (m *occaImage) Fill(r geometry.RegionSpec, pixel []byte) error {
	m.trace("fill", r)
	d := m.desc
	if uint64(len(pixel)) != d.PixelSize {
		return fmt.Errorf("fill pixel is %d bytes, %v needs %d", len(pixel), d.Format, d.PixelSize)
	}
	if m.mem == nil {
		return fmt.Errorf("%w: image already freed", runner.ErrResource)
	}
	if err := d.CheckRegion(r); err != nil {
		return err
	}
	lvl, err := d.Level(r.Lod)
	if err != nil {
		return err
	}
	base := lvl.Offset + r.Origin[2]*lvl.SlicePitch + r.Origin[1]*lvl.RowPitch + r.Origin[0]*d.PixelSize

	pm := m.disp.Device.Malloc(int64(len(pixel)), unsafe.Pointer(&pixel[0]), nil)
	if pm == nil {
		return fmt.Errorf("%w: fill pattern", runner.ErrResource)
	}
	defer pm.Free()

	err = m.disp.fill.RunWithArgs(
		int32(r.Region[1]*r.Region[2]),
		int32(r.Region[1]),
		int32(r.Region[0]*d.PixelSize),
		int32(d.PixelSize),
		int64(base),
		int64(lvl.RowPitch),
		int64(lvl.SlicePitch),
		m.mem,
		pm,
	)
	if err != nil {
		return fmt.Errorf("kernel execution failed: %w", err)
	}
	m.disp.Device.Finish()
	return nil
}

func (m *occaImage) Free() {
	if m.mem != nil {
		m.mem.Free()
		m.mem = nil
	}
}
