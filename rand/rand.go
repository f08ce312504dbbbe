package rand

import (
	"math"

	"github.com/pkg/errors"
	"github.com/seehuhn/mt19937"
)

// A Generator is a Mersenne twister PRNG stream. Every chain owns exactly one
// Generator: nothing here is safe for concurrent use, and nothing needs to be.
type Generator struct {
	mt *mt19937.MT19937

	// Cached second variate from the polar normal transform
	spare    float64
	hasSpare bool
}

// NewGenerator returns a new PRNG stream based on the given seed.
func NewGenerator(seed int64) (*Generator, error) {
	mt := mt19937.New()
	mt.Seed(seed)
	return &Generator{mt: mt}, nil
}

// NewGeneratorSlice returns a new PRNG stream seeded from a slice of words
// using the canonical mt19937 init-by-array routine.
func NewGeneratorSlice(seed []uint64) (*Generator, error) {
	if len(seed) < 1 {
		return nil, errors.Errorf("Can not seed a generator from an empty slice")
	}

	mt := mt19937.New()
	mt.SeedFromSlice(seed)
	return &Generator{mt: mt}, nil
}

// chainSalt keeps a chain stream distinct from a plain NewGenerator stream
// that happens to share the seed word.
const chainSalt = 0x9E3779B97F4A7C15

// NewChainGenerator returns the PRNG stream for one chain of a run. The
// stream is a pure function of (seed, chain): the same pair always reproduces
// the identical sequence, and different chain indices give unrelated streams.
func NewChainGenerator(seed int64, chain int) (*Generator, error) {
	if chain < 0 {
		return nil, errors.Errorf("Chain index %d is invalid", chain)
	}
	return NewGeneratorSlice([]uint64{uint64(seed), uint64(chain), chainSalt})
}

// Int63 provides the same interface as Go's math/rand.
func (g *Generator) Int63() int64 {
	return g.mt.Int63()
}

// Int63n is a copy of the current Go code
func (g *Generator) Int63n(n int64) int64 {
	if n <= 0 {
		panic("invalid argument to Int63n")
	}

	if n&(n-1) == 0 { // n is power of two, can mask
		return g.Int63() & (n - 1)
	}

	max := int64((1 << 63) - 1 - (1<<63)%uint64(n))
	v := g.Int63()
	for v > max {
		v = g.Int63()
	}

	return v % n
}

// Int31 is just a copy of the golang impl
func (g *Generator) Int31() int32 {
	return int32(g.Int63() >> 32)
}

// Int31n is just a copy of the golang impL
func (g *Generator) Int31n(n int32) int32 {
	if n <= 0 {
		panic("invalid argument to Int31n")
	}

	if n&(n-1) == 0 { // n is power of two, can mask
		return g.Int31() & (n - 1)
	}

	max := int32((1 << 31) - 1 - (1<<31)%uint32(n))
	v := g.Int31()

	for v > max {
		v = g.Int31()
	}

	return v % n
}

// Float64 uses the commented, simpler implmentation since we don't have the
// same support requirements for users
func (g *Generator) Float64() float64 {
	// See the Go lang comments for Rand Float64 implementation for details
	return float64(g.Int63n(1<<53)) / (1 << 53)
}

// Bool returns a fair coin flip.
func (g *Generator) Bool() bool {
	return g.Int63()&1 == 0
}

// NormFloat64 returns a standard normal variate via the Marsaglia polar
// method. The transform produces variates in pairs; the second is cached so
// the stream consumes a deterministic number of uniforms per pair.
func (g *Generator) NormFloat64() float64 {
	if g.hasSpare {
		g.hasSpare = false
		return g.spare
	}

	for {
		u := 2.0*g.Float64() - 1.0
		v := 2.0*g.Float64() - 1.0
		s := u*u + v*v
		if s >= 1.0 || s == 0.0 {
			continue
		}
		f := math.Sqrt(-2.0 * math.Log(s) / s)
		g.spare = v * f
		g.hasSpare = true
		return u * f
	}
}
