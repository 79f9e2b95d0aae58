package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/notargets/imgconform/codec"
	"github.com/notargets/imgconform/format"
	"github.com/notargets/imgconform/geometry"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every configuration validation failure
var ErrInvalidConfig = errors.New("invalid test configuration")

// Policy selects how image sizes are produced
type Policy int

const (
	// Randomized draws log-uniform sizes bounded by the device limits
	Randomized Policy = iota
	// Small sweeps every tiny size exhaustively
	Small
	// Max tries the largest sizes the device claims to support
	Max
)

func (p Policy) String() string {
	switch p {
	case Small:
		return "small"
	case Max:
		return "max"
	default:
		return "randomized"
	}
}

// Test families run against every image
const (
	FamilyWrite = "write"
	FamilyFill  = "fill"
	FamilyCopy  = "copy"
)

// Half-float rounding names accepted in HalfRounding
const (
	RoundNearestEven = "rte"
	RoundTowardZero  = "rtz"
)

// TestConfig holds every knob of a conformance run. It is built once,
// validated, then passed by value to the components that need it.
type TestConfig struct {
	SmallImages   bool `yaml:"small_images"`
	MaxImages     bool `yaml:"max_images"`
	EnablePitch   bool `yaml:"use_pitches"`
	EnableMipmaps bool `yaml:"mipmaps"`
	DebugTrace    bool `yaml:"debug"`

	Iterations    int    `yaml:"iterations"`
	Seed          uint64 `yaml:"seed"` // 0 seeds from the clock
	SafetyDivisor uint64 `yaml:"safety_divisor"`
	BudgetDivisor uint64 `yaml:"budget_divisor"`
	MaxRetries    int    `yaml:"max_retries"`

	RegionSamples      int    `yaml:"region_samples"`
	RegionThreshold    uint64 `yaml:"region_threshold"`
	HalfRounding       string `yaml:"half_rounding"`
	OffsetSearchWindow int    `yaml:"offset_search_window"`

	ImageTypes []string `yaml:"image_types"` // empty means all
	Formats    []string `yaml:"formats"`     // empty means every legal format
	Families   []string `yaml:"families"`
	Device     string   `yaml:"device"` // OCCA device properties; empty uses the host dispatcher
}

// Default returns the configuration of a plain randomized run
func Default() TestConfig {
	return TestConfig{
		Iterations:         30,
		SafetyDivisor:      2,
		BudgetDivisor:      4,
		MaxRetries:         1000,
		RegionSamples:      8,
		RegionThreshold:    8,
		HalfRounding:       RoundNearestEven,
		OffsetSearchWindow: 16,
		Families:           []string{FamilyWrite, FamilyFill, FamilyCopy},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (TestConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges and names
func (c TestConfig) Validate() error {
	fail := func(msg string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(msg, args...))
	}
	if c.SmallImages && c.MaxImages {
		return fail("small_images and max_images are exclusive")
	}
	if c.Iterations < 1 {
		return fail("iterations must be at least 1, got %d", c.Iterations)
	}
	if c.MaxRetries < 1 {
		return fail("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.SafetyDivisor < 1 || c.BudgetDivisor < 1 {
		return fail("divisors must be at least 1")
	}
	if c.RegionSamples < 0 {
		return fail("region_samples must not be negative")
	}
	if c.RegionThreshold < 1 {
		return fail("region_threshold must be at least 1")
	}
	if c.OffsetSearchWindow < 0 {
		return fail("offset_search_window must not be negative")
	}
	switch strings.ToLower(c.HalfRounding) {
	case RoundNearestEven, RoundTowardZero:
	default:
		return fail("half_rounding must be %q or %q, got %q", RoundNearestEven, RoundTowardZero, c.HalfRounding)
	}
	if _, err := c.Types(); err != nil {
		return fail("%v", err)
	}
	if _, err := c.FormatList(); err != nil {
		return fail("%v", err)
	}
	if len(c.Families) == 0 {
		return fail("no test families selected")
	}
	for _, f := range c.Families {
		switch f {
		case FamilyWrite, FamilyFill, FamilyCopy:
		default:
			return fail("unknown test family %q", f)
		}
	}
	return nil
}

// Policy returns the size policy selected by the flags
func (c TestConfig) Policy() Policy {
	switch {
	case c.SmallImages:
		return Small
	case c.MaxImages:
		return Max
	}
	return Randomized
}

// Rounding returns the float to half conversion mode
func (c TestConfig) Rounding() codec.RoundingMode {
	if strings.ToLower(c.HalfRounding) == RoundTowardZero {
		return codec.RoundTowardZero
	}
	return codec.RoundToNearestEven
}

// Types resolves ImageTypes, defaulting to every image type
func (c TestConfig) Types() ([]geometry.ImageType, error) {
	if len(c.ImageTypes) == 0 {
		return geometry.ImageTypes(), nil
	}
	types := make([]geometry.ImageType, 0, len(c.ImageTypes))
	for _, s := range c.ImageTypes {
		t, err := geometry.ParseImageType(s)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// FormatList resolves Formats, defaulting to every legal format.
// Named formats are returned even when illegal so the run can skip them.
func (c TestConfig) FormatList() ([]format.Format, error) {
	if len(c.Formats) == 0 {
		return format.StandardFormats(), nil
	}
	formats := make([]format.Format, 0, len(c.Formats))
	for _, s := range c.Formats {
		f, err := format.Parse(s)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return formats, nil
}

// HasFamily reports whether a test family is enabled
func (c TestConfig) HasFamily(name string) bool {
	for _, f := range c.Families {
		if f == name {
			return true
		}
	}
	return false
}
