package runner

import (
	"context"
	"fmt"

	"github.com/notargets/imgconform/codec"
	"github.com/notargets/imgconform/config"
	"github.com/notargets/imgconform/geometry"
)

// mirror holds the contents an image is expected to have, in the same
// multi-level layout as the image
type mirror struct {
	desc *geometry.ImageDescriptor
	data []byte
}

func newMirror(d *geometry.ImageDescriptor) *mirror {
	return &mirror{desc: d, data: make([]byte, d.AllocationSize())}
}

func (m *mirror) level(lod uint32) (geometry.PixelBuffer, error) {
	return m.desc.View(m.data, lod)
}

// randomRegion returns a tightly packed buffer for region reg filled with
// random representable pixels, and their values in scan order
func (r *Runner) randomRegion(d *geometry.ImageDescriptor, reg geometry.RegionSpec) (geometry.PixelBuffer, []codec.Pixel, error) {
	buf := geometry.NewRegionBuffer(d, reg)
	n := reg.Pixels()
	values := make([]codec.Pixel, n)
	ps := d.PixelSize
	for i := uint64(0); i < n; i++ {
		p, b, err := r.Codec.RandomPixel(r.Rand, d.Format)
		if err != nil {
			return geometry.PixelBuffer{}, nil, err
		}
		copy(buf.Data[i*ps:(i+1)*ps], b)
		values[i] = p
	}
	return buf, values, nil
}

// seed writes random data over every level of img and records it in m
func (r *Runner) seed(img Image, m *mirror) error {
	d := img.Desc()
	for lod := range d.Levels() {
		full := d.FullRegion(lod)
		staged, _, err := r.randomRegion(d, full)
		if err != nil {
			return err
		}
		if err := img.Write(full, staged); err != nil {
			return err
		}
		lvl, err := m.level(lod)
		if err != nil {
			return err
		}
		if err := geometry.CopyRegion(lvl, staged, d, full); err != nil {
			return err
		}
	}
	return nil
}

// readBack reads a whole level of img into a tight host buffer
func readBack(img Image, lod uint32) (geometry.PixelBuffer, error) {
	full := img.Desc().FullRegion(lod)
	buf := geometry.NewRegionBuffer(img.Desc(), full)
	if err := img.Read(full, buf); err != nil {
		return geometry.PixelBuffer{}, err
	}
	return buf, nil
}

// allocate returns a seeded image and its mirror
func (r *Runner) allocate(d *geometry.ImageDescriptor) (Image, *mirror, error) {
	img, err := r.Dispatcher.Allocate(d)
	if err != nil {
		return nil, nil, err
	}
	m := newMirror(d)
	if err := r.seed(img, m); err != nil {
		img.Free()
		return nil, nil, err
	}
	return img, m, nil
}

// verifyLevel reads level lod back and checks it against the mirror. On
// a mismatch the mirror takes the device contents so later cases are
// judged on their own.
func (r *Runner) verifyLevel(family string, img Image, m *mirror, lod uint32, where fmt.Stringer,
	check func(expected, actual geometry.PixelBuffer) error) error {
	d := img.Desc()
	expected, err := m.level(lod)
	if err != nil {
		return err
	}
	actual, err := readBack(img, lod)
	if err != nil {
		return err
	}
	ok, err := r.record(family, d, where, check(expected, actual))
	if err != nil || ok {
		return err
	}
	return geometry.CopyRegion(expected, actual, d, d.FullRegion(lod))
}

// runWrite writes random data into sampled regions of one level and
// checks the whole level after each write
func (r *Runner) runWrite(ctx context.Context, d *geometry.ImageDescriptor) error {
	img, m, err := r.allocate(d)
	if err != nil {
		return err
	}
	defer img.Free()

	cmp := r.comparator(d)
	lod := r.Regions.PickLod(d)
	full := d.FullRegion(lod)
	for _, reg := range r.Regions.Generate(d, lod) {
		if err := ctx.Err(); err != nil {
			return err
		}
		staged, values, err := r.randomRegion(d, reg)
		if err != nil {
			return err
		}
		if err := img.Write(reg, staged); err != nil {
			return err
		}
		lvl, err := m.level(lod)
		if err != nil {
			return err
		}
		if err := geometry.CopyRegion(lvl, staged, d, reg); err != nil {
			return err
		}
		err = r.verifyLevel(config.FamilyWrite, img, m, lod, reg, func(expected, actual geometry.PixelBuffer) error {
			if err := cmp.Compare(expected, actual, full); err != nil {
				return err
			}
			return cmp.CompareReference(values, actual, reg)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// runFill fills sampled regions with one random colour each
func (r *Runner) runFill(ctx context.Context, d *geometry.ImageDescriptor) error {
	img, m, err := r.allocate(d)
	if err != nil {
		return err
	}
	defer img.Free()

	cmp := r.comparator(d)
	lod := r.Regions.PickLod(d)
	full := d.FullRegion(lod)
	for _, reg := range r.Regions.Generate(d, lod) {
		if err := ctx.Err(); err != nil {
			return err
		}
		value, pixel, err := r.Codec.RandomPixel(r.Rand, d.Format)
		if err != nil {
			return err
		}
		if err := img.Fill(reg, pixel); err != nil {
			return err
		}
		lvl, err := m.level(lod)
		if err != nil {
			return err
		}
		if err := FillRegion(lvl, d, reg, pixel); err != nil {
			return err
		}
		err = r.verifyLevel(config.FamilyFill, img, m, lod, reg, func(expected, actual geometry.PixelBuffer) error {
			if err := cmp.Compare(expected, actual, full); err != nil {
				return err
			}
			values := make([]codec.Pixel, reg.Pixels())
			for i := range values {
				values[i] = value
			}
			return cmp.CompareReference(values, actual, reg)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// partner picks the destination of a copy: a fresh random image of the
// same type and format when sizes are randomized, otherwise a twin
func (r *Runner) partner(d *geometry.ImageDescriptor) *geometry.ImageDescriptor {
	if r.Config.Policy() == config.Randomized {
		p, err := r.Sampler.Random(d.Type, d.Format)
		if err == nil {
			return p
		}
		r.Logger.Debug("using a twin copy destination", "image", d.String(), "err", err)
	}
	return d.Clone()
}

// runCopy reads sampled regions of d and writes them into a second image
// at independent origins and levels
func (r *Runner) runCopy(ctx context.Context, d *geometry.ImageDescriptor) error {
	src, srcMirror, err := r.allocate(d)
	if err != nil {
		return err
	}
	defer src.Free()
	dd := r.partner(d)
	dst, dstMirror, err := r.allocate(dd)
	if err != nil {
		return err
	}
	defer dst.Free()

	cmp := r.comparator(dd)
	for _, c := range r.Regions.GenerateCopies(d, dd) {
		if err := ctx.Err(); err != nil {
			return err
		}
		staged := geometry.NewRegionBuffer(d, c.Src())
		if err := src.Read(c.Src(), staged); err != nil {
			return err
		}
		staged.Origin = c.DstOrigin
		if err := dst.Write(c.Dst(), staged); err != nil {
			return err
		}

		want := geometry.NewRegionBuffer(d, c.Src())
		srcLvl, err := srcMirror.level(c.SrcLod)
		if err != nil {
			return err
		}
		if err := geometry.CopyRegion(want, srcLvl, d, c.Src()); err != nil {
			return err
		}
		want.Origin = c.DstOrigin
		dstLvl, err := dstMirror.level(c.DstLod)
		if err != nil {
			return err
		}
		if err := geometry.CopyRegion(dstLvl, want, dd, c.Dst()); err != nil {
			return err
		}

		full := dd.FullRegion(c.DstLod)
		err = r.verifyLevel(config.FamilyCopy, dst, dstMirror, c.DstLod, c, func(expected, actual geometry.PixelBuffer) error {
			return cmp.Compare(expected, actual, full)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
