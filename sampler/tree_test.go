package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tmcnab/nutshell/model"
	"github.com/tmcnab/nutshell/rand"
)

func testBuilder(t *testing.T, lf *leapfrog, seed int64, stepSize float64, maxDepth int) *builder {
	gen, err := rand.NewGenerator(seed)
	if err != nil {
		t.Fatalf("%v", err)
	}
	return &builder{
		lf:       lf,
		gen:      gen,
		maxDepth: maxDepth,
		stepSize: stepSize,
	}
}

func TestIsTurning(t *testing.T) {
	assert := assert.New(t)

	// Two states one step apart with aligned momentum: not turning
	a := newState(1)
	b := newState(1)
	a.idx, b.idx = 0, 1
	a.mom[0], b.mom[0] = 1.0, 1.0
	a.vel[0], b.vel[0] = 1.0, 1.0
	a.psum[0] = 1.0
	b.psum[0] = 2.0
	assert.False(isTurning(a, b))

	// Momentum reversed at the far edge: turning
	b.mom[0] = -1.0
	b.vel[0] = -1.0
	b.psum[0] = 0.0
	assert.True(isTurning(a, b))

	// Argument order must not matter
	assert.True(isTurning(b, a))
}

func TestTreeStopsOnUTurn(t *testing.T) {
	assert := assert.New(t)

	// For a 1-D standard normal with unit metric the trajectory is a circle
	// in phase space with period 2 pi: at step size 0.1 the U-turn comes
	// after ~31 steps, i.e. depth 5-6. The depth cap of 10 must never be
	// the stopping reason.
	lf := testLeapfrog(t, 1, 1000)
	b := testBuilder(t, lf, 99, 0.1, 10)
	gen := b.gen

	s, err := lf.initialize([]float64{0.7})
	assert.NoError(err)

	for i := 0; i < 20; i++ {
		prime(lf, s, gen)
		next, info := b.draw(s)
		assert.False(info.MaxDepth)
		assert.Nil(info.Diverged)
		assert.True(info.Depth >= 4 && info.Depth <= 7, "depth %d out of expected band", info.Depth)
		s = next
	}
}

func TestTreeMaxDepth(t *testing.T) {
	assert := assert.New(t)

	// A tiny step size cannot reach the U-turn before the cap
	lf := testLeapfrog(t, 1, 1000)
	b := testBuilder(t, lf, 11, 1e-4, 3)

	s, err := lf.initialize([]float64{0.5})
	assert.NoError(err)
	prime(lf, s, b.gen)

	next, info := b.draw(s)
	assert.True(info.MaxDepth)
	assert.Equal(3, info.Depth)
	assert.Equal(7, info.Leapfrogs) // 1 + 2 + 4
	assert.Nil(info.Diverged)
	assert.NotNil(next)
}

func TestTreeDivergenceInjection(t *testing.T) {
	assert := assert.New(t)

	tgt, err := model.NewSingular(2)
	assert.NoError(err)
	met, err := NewIdentityMetric(2)
	assert.NoError(err)
	lf := &leapfrog{target: tgt, metric: met, maxEnergyError: 50.0}
	b := testBuilder(t, lf, 5, 0.5, 10)

	s, err := lf.initialize([]float64{0.4, 0.0})
	assert.NoError(err)

	divergences := 0
	for i := 0; i < 200; i++ {
		prime(lf, s, b.gen)
		next, info := b.draw(s)
		if info.Diverged != nil {
			divergences++
		}
		// Never crash, never hand back a broken state
		assert.True(allFinite(next.pos))
		s = next
	}
	assert.True(divergences > 0, "expected divergences near the singularity")
}

func TestTreeAcceptStat(t *testing.T) {
	assert := assert.New(t)

	lf := testLeapfrog(t, 1, 1000)
	b := testBuilder(t, lf, 21, 0.1, 10)

	s, err := lf.initialize([]float64{0.2})
	assert.NoError(err)
	prime(lf, s, b.gen)

	_, info := b.draw(s)
	assert.True(info.AcceptStat > 0.9, "small steps on a smooth target should accept readily, got %v", info.AcceptStat)
	assert.True(info.AcceptStat <= 1.0)
	assert.True(info.Leapfrogs > 0)
}

func TestTreeDeterminism(t *testing.T) {
	assert := assert.New(t)

	run := func() []float64 {
		lf := testLeapfrog(t, 2, 1000)
		b := testBuilder(t, lf, 1234, 0.2, 10)
		s, err := lf.initialize([]float64{0.3, -0.4})
		assert.NoError(err)

		out := []float64{}
		for i := 0; i < 25; i++ {
			prime(lf, s, b.gen)
			next, _ := b.draw(s)
			s = next
			out = append(out, s.pos...)
		}
		return out
	}

	assert.Equal(run(), run())
}
