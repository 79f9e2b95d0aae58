package random

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Source supplies the draws used by the samplers and region generators
type Source interface {
	// Uniform returns a value in [lo, hi]
	Uniform(lo, hi uint64) uint64
	// LogUniform returns a value in [lo, hi] whose logarithm is uniform
	LogUniform(lo, hi uint64) uint64
	Float64() float64
}

// Rand is a reproducible Source backed by a PCG generator
type Rand struct {
	Seed uint64
	src  rand.Source
	rng  *rand.Rand
}

// New returns a generator whose sequence is fixed by seed
func New(seed uint64) *Rand {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Rand{Seed: seed, src: src, rng: rand.New(src)}
}

// NewFromClock seeds from the wall clock for fuzzing runs. The seed is
// kept in Rand.Seed so a failure can be replayed.
func NewFromClock() *Rand {
	return New(uint64(time.Now().UnixNano()))
}

func (r *Rand) Uniform(lo, hi uint64) uint64 {
	if hi <= lo {
		return lo
	}
	span := hi - lo
	if span == math.MaxUint64 {
		return r.rng.Uint64()
	}
	return lo + r.rng.Uint64N(span+1)
}

func (r *Rand) LogUniform(lo, hi uint64) uint64 {
	if lo < 1 {
		lo = 1
	}
	if hi <= lo {
		return lo
	}
	// Sample ln(v) on [ln lo, ln(hi+1)) and floor, so every integer in
	// the range is reachable
	d := distuv.Uniform{Min: math.Log(float64(lo)), Max: math.Log(float64(hi) + 1), Src: r.src}
	v := uint64(math.Exp(d.Rand()))
	return min(max(v, lo), hi)
}

func (r *Rand) Float64() float64 {
	return r.rng.Float64()
}
