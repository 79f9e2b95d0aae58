package compare

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/notargets/imgconform/codec"
	"github.com/notargets/imgconform/format"
	"github.com/notargets/imgconform/geometry"
	"gonum.org/v1/gonum/floats/scalar"
)

// ErrMismatch is wrapped by every *Mismatch
var ErrMismatch = errors.New("image data mismatch")

// Mode selects how two stored pixels are compared
type Mode int

const (
	// Exact compares stored bytes
	Exact Mode = iota
	// Tolerant decodes pixels and compares channels within the format's
	// tolerance. NaN matches NaN.
	Tolerant
)

func (m Mode) String() string {
	if m == Tolerant {
		return "tolerant"
	}
	return "exact"
}

// ModeFor picks Tolerant for floating point storage, where NaN payloads
// and signed zeros may legitimately differ, and Exact otherwise
func ModeFor(f format.Format) Mode {
	if format.IsFloat(f.Type) {
		return Tolerant
	}
	return Exact
}

// Mismatch describes the first element that failed verification
type Mismatch struct {
	Format  format.Format
	X, Y, Z uint64
	Lod     uint32
	// Lane is the byte within the pixel (Exact) or the logical channel
	// (Tolerant and reference checks)
	Lane int
	// VectorIndex is the pixel's position in region scan order
	VectorIndex uint64

	Expected      []byte
	Actual        []byte
	ExpectedValue codec.Pixel
	ActualValue   codec.Pixel

	Hypothesis Hypothesis
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("%v mismatch at (%d,%d,%d) lod %d, element %d lane %d: expected %x (%v) got %x (%v); %s",
		m.Format, m.X, m.Y, m.Z, m.Lod, m.VectorIndex, m.Lane,
		m.Expected, m.ExpectedValue, m.Actual, m.ActualValue, m.Hypothesis.Description)
}

func (m *Mismatch) Unwrap() error {
	return ErrMismatch
}

// LogAttrs returns the mismatch as structured log attributes
func (m *Mismatch) LogAttrs() []any {
	return []any{
		"format", m.Format.String(),
		"x", m.X, "y", m.Y, "z", m.Z, "lod", m.Lod,
		"element", m.VectorIndex, "lane", m.Lane,
		"expected", fmt.Sprintf("%x", m.Expected),
		"actual", fmt.Sprintf("%x", m.Actual),
		"offset", m.Hypothesis.Description,
	}
}

// Comparator verifies device data against host data for one image
type Comparator struct {
	Desc        *geometry.ImageDescriptor
	Mode        Mode
	Codec       codec.Codec
	Diagnostics MismatchDiagnostics
	Logger      *slog.Logger
}

// Option configures a Comparator
type Option func(*Comparator)

func WithMode(m Mode) Option { return func(c *Comparator) { c.Mode = m } }

func WithCodec(cd codec.Codec) Option { return func(c *Comparator) { c.Codec = cd } }

// WithDiagnostics replaces the offset search run on a mismatch; nil disables it
func WithDiagnostics(d MismatchDiagnostics) Option {
	return func(c *Comparator) {
		if d == nil {
			d = NoDiagnostics{}
		}
		c.Diagnostics = d
	}
}

func WithLogger(l *slog.Logger) Option { return func(c *Comparator) { c.Logger = l } }

// New returns a comparator for images described by desc
func New(desc *geometry.ImageDescriptor, opts ...Option) *Comparator {
	c := &Comparator{
		Desc:        desc,
		Mode:        ModeFor(desc.Format),
		Diagnostics: OffsetSearch{Window: DefaultWindow},
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compare scans region r of expected and actual, slice by slice and row
// by row, each buffer with its own pitches. It stops at the first
// mismatching element and returns it as a *Mismatch.
func (c *Comparator) Compare(expected, actual geometry.PixelBuffer, r geometry.RegionSpec) error {
	d := c.Desc
	if err := d.CheckRegion(r); err != nil {
		return err
	}
	ps := d.PixelSize
	for z := uint64(0); z < r.Region[2]; z++ {
		for y := uint64(0); y < r.Region[1]; y++ {
			x0, y0, z0 := r.Origin[0], r.Origin[1]+y, r.Origin[2]+z
			want, err := expected.Row(ps, x0, y0, z0, r.Region[0])
			if err != nil {
				return fmt.Errorf("expected buffer: %w", err)
			}
			got, err := actual.Row(ps, x0, y0, z0, r.Region[0])
			if err != nil {
				return fmt.Errorf("actual buffer: %w", err)
			}

			px, lane, ok := c.compareRow(want, got)
			if ok {
				continue
			}
			m := &Mismatch{
				Format:      d.Format,
				X:           x0 + px,
				Y:           y0,
				Z:           z0,
				Lod:         r.Lod,
				Lane:        lane,
				VectorIndex: (z*r.Region[1]+y)*r.Region[0] + px,
				Expected:    bytes.Clone(want[px*ps : (px+1)*ps]),
				Actual:      bytes.Clone(got[px*ps : (px+1)*ps]),
			}
			m.ExpectedValue, _ = c.Codec.Decode(m.Expected, d.Format)
			m.ActualValue, _ = c.Codec.Decode(m.Actual, d.Format)
			m.Hypothesis = c.diagnose(expected, actual, r, m.X, m.Y, m.Z)
			c.Logger.Debug("compare failed", m.LogAttrs()...)
			return m
		}
	}
	return nil
}

// compareRow returns the first differing pixel and lane of two rows
func (c *Comparator) compareRow(want, got []byte) (px uint64, lane int, ok bool) {
	ps := c.Desc.PixelSize
	if c.Mode == Exact {
		if bytes.Equal(want, got) {
			return 0, 0, true
		}
		for i := range want {
			if want[i] != got[i] {
				return uint64(i) / ps, i % int(ps), false
			}
		}
		return 0, 0, true
	}

	f := c.Desc.Format
	stored := codec.StoredChannels(f.Order)
	n := uint64(len(want)) / ps
	for p := uint64(0); p < n; p++ {
		wb, gb := want[p*ps:(p+1)*ps], got[p*ps:(p+1)*ps]
		if bytes.Equal(wb, gb) {
			continue
		}
		wv, _ := c.Codec.Decode(wb, f)
		gv, _ := c.Codec.Decode(gb, f)
		for ch := 0; ch < 4; ch++ {
			if !stored[ch] {
				continue
			}
			tol := max(codec.Tolerance(f, ch, wv[ch]), codec.Tolerance(f, ch, gv[ch]))
			if !channelEqual(wv[ch], gv[ch], tol) {
				return p, ch, false
			}
		}
	}
	return 0, 0, true
}

// CompareReference checks region r of actual against unquantized host
// values, one per pixel in scan order, within the format's rounding
// tolerance
func (c *Comparator) CompareReference(reference []codec.Pixel, actual geometry.PixelBuffer, r geometry.RegionSpec) error {
	d := c.Desc
	if err := d.CheckRegion(r); err != nil {
		return err
	}
	if uint64(len(reference)) != r.Pixels() {
		return fmt.Errorf("%d reference pixels for a %d pixel region", len(reference), r.Pixels())
	}
	f := d.Format
	stored := codec.StoredChannels(f.Order)
	ps := d.PixelSize
	var i uint64
	for z := uint64(0); z < r.Region[2]; z++ {
		for y := uint64(0); y < r.Region[1]; y++ {
			x0, y0, z0 := r.Origin[0], r.Origin[1]+y, r.Origin[2]+z
			got, err := actual.Row(ps, x0, y0, z0, r.Region[0])
			if err != nil {
				return fmt.Errorf("actual buffer: %w", err)
			}
			for x := uint64(0); x < r.Region[0]; x, i = x+1, i+1 {
				pb := got[x*ps : (x+1)*ps]
				gv, err := c.Codec.Decode(pb, f)
				if err != nil {
					return err
				}
				want := codec.Representable(reference[i], f)
				for ch := 0; ch < 4; ch++ {
					if !stored[ch] {
						continue
					}
					if channelEqual(want[ch], gv[ch], codec.Tolerance(f, ch, want[ch])) {
						continue
					}
					m := &Mismatch{
						Format: f, X: x0 + x, Y: y0, Z: z0, Lod: r.Lod,
						Lane: ch, VectorIndex: i,
						Actual:        bytes.Clone(pb),
						ExpectedValue: reference[i],
						ActualValue:   gv,
						Hypothesis:    Hypothesis{Description: noHypothesis},
					}
					m.Expected, _ = c.Codec.Encode(reference[i], f)
					c.Logger.Debug("reference check failed", m.LogAttrs()...)
					return m
				}
			}
		}
	}
	return nil
}

func (c *Comparator) diagnose(expected, actual geometry.PixelBuffer, r geometry.RegionSpec, x, y, z uint64) Hypothesis {
	if c.Diagnostics == nil {
		return Hypothesis{Description: noHypothesis}
	}
	return c.Diagnostics.Diagnose(c.Desc, expected, actual, r, x, y, z)
}

func channelEqual(want, got, tol float64) bool {
	if math.IsNaN(want) || math.IsNaN(got) {
		return math.IsNaN(want) && math.IsNaN(got)
	}
	if math.IsInf(want, 0) || math.IsInf(got, 0) {
		return want == got
	}
	return scalar.EqualWithinAbs(want, got, tol)
}
