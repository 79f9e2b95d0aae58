package compare

import (
	"bytes"
	"fmt"

	"github.com/notargets/imgconform/geometry"
)

// DefaultWindow is how many pixels and rows OffsetSearch looks around a mismatch
const DefaultWindow = 16

const noHypothesis = "unable to determine offset"

// probePixels is how many actual pixels are matched against the expected data
const probePixels = 4

// Hypothesis explains a mismatch as a shift of the data, if one was found
type Hypothesis struct {
	Found       bool
	DX, DY      int64
	Description string
}

// MismatchDiagnostics guesses the cause of a mismatch. It only adds
// detail to the report and never changes the verdict.
type MismatchDiagnostics interface {
	Diagnose(d *geometry.ImageDescriptor, expected, actual geometry.PixelBuffer, r geometry.RegionSpec, x, y, z uint64) Hypothesis
}

// NoDiagnostics skips diagnosis
type NoDiagnostics struct{}

func (NoDiagnostics) Diagnose(*geometry.ImageDescriptor, geometry.PixelBuffer, geometry.PixelBuffer, geometry.RegionSpec, uint64, uint64, uint64) Hypothesis {
	return Hypothesis{Description: noHypothesis}
}

// OffsetSearch looks for the actual pixels at the mismatch somewhere
// else in the expected data, within Window pixels along the row and
// Window rows up or down. A hit usually means a pitch or element offset
// error rather than corrupted data.
type OffsetSearch struct {
	Window int
}

func (o OffsetSearch) Diagnose(d *geometry.ImageDescriptor, expected, actual geometry.PixelBuffer, r geometry.RegionSpec, x, y, z uint64) Hypothesis {
	ps := d.PixelSize
	e := d.ExtentsAtLevel(r.Lod)
	end := r.Origin[0] + r.Region[0]
	n := min(uint64(probePixels), end-x)
	probe, err := actual.Row(ps, x, y, z, n)
	if err != nil || n == 0 {
		return Hypothesis{Description: noHypothesis}
	}

	w := int64(o.Window)
	// Nearest shifts first: by row distance, then element distance
	for dy := int64(0); dy <= w; dy++ {
		for _, sy := range signs(dy) {
			for dx := int64(0); dx <= w; dx++ {
				for _, sx := range signs(dx) {
					if sx == 0 && sy == 0 {
						continue
					}
					cx, cy := int64(x)+sx, int64(y)+sy
					if cx < 0 || cy < 0 || uint64(cx)+n > e[0] || uint64(cy) >= e[1] {
						continue
					}
					cand, err := expected.Row(ps, uint64(cx), uint64(cy), z, n)
					if err != nil || !bytes.Equal(cand, probe) {
						continue
					}
					return Hypothesis{
						Found: true, DX: sx, DY: sy,
						Description: fmt.Sprintf("actual data matches expected data shifted by %d pixels and %d rows", sx, sy),
					}
				}
			}
		}
	}
	return Hypothesis{Description: noHypothesis}
}

func signs(v int64) []int64 {
	if v == 0 {
		return []int64{0}
	}
	return []int64{v, -v}
}
