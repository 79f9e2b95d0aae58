package runner

import (
	"fmt"

	"github.com/notargets/imgconform/geometry"
)

// Fault corrupts a level after a write or fill. It lets tests check that
// verification catches bad device data.
type Fault func(d *geometry.ImageDescriptor, level geometry.PixelBuffer, r geometry.RegionSpec)

// HostDispatcher keeps images in host memory using the same multi-level
// layout a device would. It is the reference backing store.
type HostDispatcher struct {
	// MaxBytes caps a single allocation; 0 means no cap
	MaxBytes uint64
	Fault    Fault
}

func (h *HostDispatcher) Name() string { return "host" }

func (h *HostDispatcher) Allocate(d *geometry.ImageDescriptor) (Image, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	size := d.AllocationSize()
	if h.MaxBytes > 0 && size > h.MaxBytes {
		return nil, fmt.Errorf("%w: %v needs %d bytes, host cap is %d", ErrResource, d, size, h.MaxBytes)
	}
	return &hostImage{desc: d, data: make([]byte, size), fault: h.Fault}, nil
}

func (h *HostDispatcher) Free() {}

type hostImage struct {
	desc  *geometry.ImageDescriptor
	data  []byte
	fault Fault
}

func (m *hostImage) Desc() *geometry.ImageDescriptor { return m.desc }

func (m *hostImage) level(lod uint32) (geometry.PixelBuffer, error) {
	if m.data == nil {
		return geometry.PixelBuffer{}, fmt.Errorf("%w: image already freed", ErrResource)
	}
	return m.desc.View(m.data, lod)
}

func (m *hostImage) Write(r geometry.RegionSpec, src geometry.PixelBuffer) error {
	lvl, err := m.level(r.Lod)
	if err != nil {
		return err
	}
	if err := geometry.CopyRegion(lvl, src, m.desc, r); err != nil {
		return err
	}
	m.corrupt(lvl, r)
	return nil
}

func (m *hostImage) Read(r geometry.RegionSpec, dst geometry.PixelBuffer) error {
	lvl, err := m.level(r.Lod)
	if err != nil {
		return err
	}
	return geometry.CopyRegion(dst, lvl, m.desc, r)
}

func (m *hostImage) Fill(r geometry.RegionSpec, pixel []byte) error {
	lvl, err := m.level(r.Lod)
	if err != nil {
		return err
	}
	if err := FillRegion(lvl, m.desc, r, pixel); err != nil {
		return err
	}
	m.corrupt(lvl, r)
	return nil
}

func (m *hostImage) corrupt(lvl geometry.PixelBuffer, r geometry.RegionSpec) {
	if m.fault != nil {
		m.fault(m.desc, lvl, r)
	}
}

func (m *hostImage) Free() { m.data = nil }
