package occa

import (
	"errors"

	"github.com/notargets/gocca"
	"github.com/notargets/imgconform/device"
)

var errNoDevice = errors.New("no OCCA device")

// Querier reads memory limits from an OCCA device. OCCA exposes no
// image objects, so image extents come from the full-profile minimums
// and the allocation limit is a quarter of device memory.
type Querier struct {
	Device *gocca.OCCADevice
}

func (q Querier) QueryLimit(name device.LimitName) (uint64, error) {
	if q.Device == nil {
		return 0, errNoDevice
	}
	global := uint64(q.Device.MemorySize())
	switch name {
	case device.GlobalMemSize:
		return global, nil
	case device.MaxMemAllocSize:
		return global / 4, nil
	}
	return device.FullProfile(global, global/4).QueryLimit(name)
}
