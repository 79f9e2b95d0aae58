// imgconform verifies image write, fill and copy operations of a device
// against host-side expected images over randomized geometries.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/fatih/color"
	"github.com/notargets/imgconform/config"
	"github.com/notargets/imgconform/device"
	"github.com/notargets/imgconform/occa"
	"github.com/notargets/imgconform/runner"
	"github.com/notargets/imgconform/utils"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

// Memory assumed for the host dispatcher
const (
	hostGlobalMem = 4 << 30
	hostMaxAlloc  = 1 << 30
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "YAML configuration file",
		EnvVars: []string{"IMGCONFORM_CONFIG"},
	}
	smallImagesFlag = &cli.BoolFlag{Name: "small-images", Usage: "sweep every small extent instead of random sizes"}
	maxImagesFlag   = &cli.BoolFlag{Name: "max-images", Usage: "test boundary sizes at the device limits"}
	pitchFlag       = &cli.BoolFlag{Name: "use-pitches", Usage: "pad row and slice pitches"}
	mipmapsFlag     = &cli.BoolFlag{Name: "mipmaps", Usage: "allocate mip chains"}
	iterationsFlag  = &cli.IntFlag{Name: "iterations", Usage: "random images per type and format"}
	seedFlag        = &cli.Uint64Flag{
		Name:    "seed",
		Usage:   "random seed, 0 seeds from the clock",
		EnvVars: []string{"IMGCONFORM_SEED"},
	}
	typesFlag    = &cli.StringSliceFlag{Name: "types", Usage: "image types, e.g. 2D,3D,1Darray"}
	formatsFlag  = &cli.StringSliceFlag{Name: "formats", Usage: "formats as ORDER/TYPE, e.g. RGBA/UNORM_INT8"}
	familiesFlag = &cli.StringSliceFlag{Name: "families", Usage: "test families: write, fill, copy"}
	deviceFlag   = &cli.StringFlag{
		Name:    "device",
		Usage:   `OCCA device properties, e.g. {"mode": "Serial"}`,
		EnvVars: []string{"IMGCONFORM_DEVICE"},
	}
	hostFlag  = &cli.BoolFlag{Name: "host", Usage: "use the host reference dispatcher even if a device is configured"}
	debugFlag = &cli.BoolFlag{Name: "debug", Usage: "log every geometry and region"}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "imgconform",
		Usage: "image geometry conformance tests",
		Flags: []cli.Flag{
			configFlag, smallImagesFlag, maxImagesFlag, pitchFlag, mipmapsFlag,
			iterationsFlag, seedFlag, typesFlag, formatsFlag, familiesFlag,
			deviceFlag, hostFlag, debugFlag,
		},
		Action: imgconform,
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, then applies flags set on
// the command line
func loadConfig(ctx *cli.Context) (config.TestConfig, error) {
	cfg := config.Default()
	if path := ctx.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	setBool := func(f *cli.BoolFlag, dst *bool) {
		if ctx.IsSet(f.Name) {
			*dst = ctx.Bool(f.Name)
		}
	}
	setBool(smallImagesFlag, &cfg.SmallImages)
	setBool(maxImagesFlag, &cfg.MaxImages)
	setBool(pitchFlag, &cfg.EnablePitch)
	setBool(mipmapsFlag, &cfg.EnableMipmaps)
	setBool(debugFlag, &cfg.DebugTrace)
	if ctx.IsSet(iterationsFlag.Name) {
		cfg.Iterations = ctx.Int(iterationsFlag.Name)
	}
	if ctx.IsSet(seedFlag.Name) {
		cfg.Seed = ctx.Uint64(seedFlag.Name)
	}
	if ctx.IsSet(typesFlag.Name) {
		cfg.ImageTypes = ctx.StringSlice(typesFlag.Name)
	}
	if ctx.IsSet(formatsFlag.Name) {
		cfg.Formats = ctx.StringSlice(formatsFlag.Name)
	}
	if ctx.IsSet(familiesFlag.Name) {
		cfg.Families = ctx.StringSlice(familiesFlag.Name)
	}
	if ctx.IsSet(deviceFlag.Name) {
		cfg.Device = ctx.String(deviceFlag.Name)
	}
	if ctx.Bool(hostFlag.Name) {
		cfg.Device = ""
	}
	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openDispatcher returns the dispatcher for cfg, its limits and a
// cleanup function
func openDispatcher(cfg config.TestConfig, logger *slog.Logger) (runner.Dispatcher, device.DeviceLimitSet, func(), error) {
	opts := []device.Option{device.WithSafetyDivisor(cfg.SafetyDivisor), device.WithHostCap(hostGlobalMem)}
	if cfg.Device == "" {
		limits, err := device.Query(device.FullProfile(hostGlobalMem, hostMaxAlloc), opts...)
		return &runner.HostDispatcher{}, limits, func() {}, err
	}

	dev, err := utils.CreateDevice(cfg.Device, logger)
	if err != nil {
		return nil, device.DeviceLimitSet{}, nil, err
	}
	limits, err := device.Query(occa.Querier{Device: dev}, opts...)
	if err != nil {
		dev.Free()
		return nil, limits, nil, err
	}
	disp, err := occa.NewDispatcher(dev, logger)
	if err != nil {
		dev.Free()
		return nil, limits, nil, err
	}
	return disp, limits, func() {
		disp.Free()
		dev.Free()
	}, nil
}

func imgconform(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger := newLogger(ctx.App.ErrWriter, cfg.DebugTrace)

	disp, limits, cleanup, err := openDispatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	logger.Info("device limits", "width", limits.MaxWidth, "height", limits.MaxHeight, "depth", limits.MaxDepth,
		"array", limits.MaxArraySize, "alloc", limits.MaxAllocSize, "global", limits.MaxGlobalMemSize)

	rng := runner.SeedSource(cfg)
	logger.Info("random seed", "seed", rng.Seed)

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
	defer stop()
	tally, runErr := runner.New(cfg, limits, disp, rng, logger).Run(runCtx)
	renderTally(ctx.App.Writer, tally)
	if runErr != nil {
		return runErr
	}
	if code := tally.ExitCode(); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// renderTally prints the final counts with an overall verdict
func renderTally(w io.Writer, t runner.Tally) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Result", "Cases"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.Append([]string{"passed", strconv.Itoa(t.Passed)})
	table.Append([]string{"failed", strconv.Itoa(t.Failed)})
	table.Append([]string{"skipped", strconv.Itoa(t.Skipped)})
	table.Render()

	verdict := color.New(color.FgGreen, color.Bold).Sprint("PASS")
	if t.Failed > 0 {
		verdict = color.New(color.FgHiRed, color.Bold).Sprint("FAIL")
	}
	fmt.Fprintf(w, "%s: %d of %d cases passed\n", verdict, t.Passed, t.Total())
}
