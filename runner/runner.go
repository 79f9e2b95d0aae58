package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/notargets/imgconform/codec"
	"github.com/notargets/imgconform/compare"
	"github.com/notargets/imgconform/config"
	"github.com/notargets/imgconform/device"
	"github.com/notargets/imgconform/format"
	"github.com/notargets/imgconform/geometry"
	"github.com/notargets/imgconform/random"
	"github.com/notargets/imgconform/region"
	"github.com/notargets/imgconform/sampler"
)

// Runner drives a conformance run: it streams image descriptors for each
// image type and format, runs every enabled test family on them through
// the dispatcher and verifies the results on the host.
type Runner struct {
	Config     config.TestConfig
	Dispatcher Dispatcher
	Sampler    *sampler.Sampler
	Regions    *region.Generator
	Codec      codec.Codec
	Rand       random.Source
	Logger     *slog.Logger

	tally Tally
}

// SeedSource returns the configured random source, seeding from the
// clock when no seed is set
func SeedSource(cfg config.TestConfig) *random.Rand {
	if cfg.Seed == 0 {
		return random.NewFromClock()
	}
	return random.New(cfg.Seed)
}

// New wires a Runner. A nil logger uses slog.Default.
func New(cfg config.TestConfig, limits device.DeviceLimitSet, disp Dispatcher, rng random.Source, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	gen := region.NewGenerator(rng)
	gen.Samples = cfg.RegionSamples
	gen.Threshold = cfg.RegionThreshold
	return &Runner{
		Config:     cfg,
		Dispatcher: disp,
		Sampler:    sampler.New(limits, cfg, rng, logger),
		Regions:    gen,
		Codec:      codec.Codec{Rounding: cfg.Rounding()},
		Rand:       rng,
		Logger:     logger,
	}
}

// Run executes the configured suite and returns the tally. Verification
// failures are counted and the run continues; a configuration error
// abandons the current image type and format. The context is checked
// between cases.
func (r *Runner) Run(ctx context.Context) (Tally, error) {
	var total Tally
	types, err := r.Config.Types()
	if err != nil {
		return total, err
	}
	formats, err := r.Config.FormatList()
	if err != nil {
		return total, err
	}
	r.Logger.Info("starting run", "dispatcher", r.Dispatcher.Name(), "policy", r.Config.Policy().String(),
		"types", len(types), "formats", len(formats))

	for _, t := range types {
		for _, f := range formats {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if !format.IsLegal(f) {
				total.Skipped++
				r.Logger.Info("skipping unsupported format", "type", t.String(), "format", f.String())
				continue
			}
			r.tally = Tally{}
			if err := r.runCombination(ctx, t, f); err != nil {
				if ctx.Err() != nil {
					total.Add(r.tally)
					return total, ctx.Err()
				}
				r.tally.Failed++
				r.Logger.Error("abandoning image type and format", "type", t.String(), "format", f.String(),
					"configuration", IsConfigurationError(err), "err", err)
			}
			r.Logger.Info("finished image type and format", "type", t.String(), "format", f.String(),
				"passed", r.tally.Passed, "failed", r.tally.Failed)
			total.Add(r.tally)
		}
	}
	return total, nil
}

func (r *Runner) runCombination(ctx context.Context, t geometry.ImageType, f format.Format) error {
	r.Logger.Debug("testing", "type", t.String(), "format", f.String())
	for d, err := range r.Sampler.Descriptors(t, f) {
		if err != nil {
			return err
		}
		for _, fam := range []struct {
			name string
			run  func(context.Context, *geometry.ImageDescriptor) error
		}{
			{config.FamilyWrite, r.runWrite},
			{config.FamilyFill, r.runFill},
			{config.FamilyCopy, r.runCopy},
		} {
			if !r.Config.HasFamily(fam.name) {
				continue
			}
			if err := fam.run(ctx, d); err != nil {
				return fmt.Errorf("%s %v: %w", fam.name, d, err)
			}
		}
	}
	return nil
}

func (r *Runner) comparator(d *geometry.ImageDescriptor) *compare.Comparator {
	return compare.New(d,
		compare.WithCodec(r.Codec),
		compare.WithDiagnostics(compare.OffsetSearch{Window: r.Config.OffsetSearchWindow}),
		compare.WithLogger(r.Logger),
	)
}

// record tallies one verified case. It reports ok=false for a mismatch
// and passes any other error through.
func (r *Runner) record(family string, d *geometry.ImageDescriptor, where fmt.Stringer, err error) (ok bool, _ error) {
	if err == nil {
		r.tally.Passed++
		return true, nil
	}
	var m *compare.Mismatch
	if !errors.As(err, &m) {
		return false, err
	}
	r.tally.Failed++
	attrs := []any{"family", family, "image", d.String(), "region", where.String()}
	if rs, isRegion := where.(geometry.RegionSpec); isRegion {
		attrs = append(attrs, "api_origin", d.APIOrigin(rs), "api_region", d.APIRegion(rs))
	}
	r.Logger.Error("verification failed", append(attrs, m.LogAttrs()...)...)
	return false, nil
}
