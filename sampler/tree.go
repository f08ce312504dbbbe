package sampler

import (
	"math"

	"github.com/tmcnab/nutshell/rand"
)

// tree is one subtree of the doubling trajectory: its two edge states, the
// current candidate draw, and the log of its total multinomial weight. A tree
// only lives for the single iteration that builds it.
type tree struct {
	left    *state
	right   *state
	draw    *state
	logSize float64
	depth   int
}

func newTree(init *state) *tree {
	return &tree{
		left:    init,
		right:   init,
		draw:    init,
		logSize: 0.0,
		depth:   0,
	}
}

// Outcomes of extending a tree by one doubling.
const (
	extOK = iota
	extTurning
	extDiverging
)

// Info summarizes the trajectory behind a single draw.
type Info struct {
	Depth       int         // final tree depth (trajectory length 2^Depth)
	Diverged    *Divergence // non-nil when the trajectory stopped on a divergence
	MaxDepth    bool        // doubling stopped by the depth cap, not a U-turn
	AcceptStat  float64     // mean Metropolis acceptance prob across all leapfrogs
	Leapfrogs   int         // number of leapfrog steps (= target gradient evals)
	EnergyError float64     // H(draw) - H(start)
}

// builder runs the doubling loop for one iteration of one chain.
type builder struct {
	lf       *leapfrog
	gen      *rand.Generator
	maxDepth int
	stepSize float64

	initialEnergy float64
	div           *Divergence
	accSum        float64
	leapfrogs     int
}

// isTurning applies the generalized U-turn test to the trajectory segment
// between two states: the segment's momentum sum must not point against the
// velocity at either end.
func isTurning(a, b *state) bool {
	start, end := a, b
	if start.idx > end.idx {
		start, end = end, start
	}

	var atStart, atEnd float64
	for i := range start.psum {
		seg := end.psum[i] - start.psum[i] + start.mom[i]
		atStart += seg * start.vel[i]
		atEnd += seg * end.vel[i]
	}
	return atStart < 0 || atEnd < 0
}

// leaf takes a single leapfrog step off the edge of t in the given direction
// and wraps the result as a depth-0 tree. A divergent step contributes zero
// to the acceptance statistic and returns no tree.
func (b *builder) leaf(t *tree, dir int) (*tree, *Divergence) {
	start := t.right
	if dir < 0 {
		start = t.left
	}

	b.leapfrogs++
	end, div := b.lf.step(start, float64(dir)*b.stepSize, b.initialEnergy)
	if div != nil {
		return nil, div
	}

	logAcc := end.logAcceptProb(b.initialEnergy)
	b.accSum += math.Exp(logAcc)

	return &tree{
		left:    end,
		right:   end,
		draw:    end,
		logSize: logAcc,
		depth:   0,
	}, nil
}

// merge folds other into t after a successful doubling. The candidate draw
// moves to other's candidate with probability min(1, exp(logSize diff)); the
// uniform variate is consumed only when other is not strictly heavier, which
// keeps the selection rule fixed so runs stay reproducible.
func (b *builder) merge(t, other *tree, dir int) {
	if dir > 0 {
		t.right = other.right
	} else {
		t.left = other.left
	}

	if other.logSize > t.logSize {
		t.draw = other.draw
	} else if b.gen.Float64() < math.Exp(other.logSize-t.logSize) {
		t.draw = other.draw
	}

	t.depth++
	t.logSize = logAddExp(t.logSize, other.logSize)
}

// extend doubles t once in the given direction: build a second tree of the
// same depth adjacent to t, check the U-turn criterion across the combined
// edges, and merge. A turn or divergence inside the new subtree discards it
// entirely - t keeps its candidate set and the doubling loop stops.
func (b *builder) extend(t *tree, dir int) int {
	other, div := b.leaf(t, dir)
	if div != nil {
		b.div = div
		return extDiverging
	}

	for other.depth < t.depth {
		switch b.extend(other, dir) {
		case extTurning:
			return extTurning
		case extDiverging:
			return extDiverging
		}
	}

	var first, last *state
	if dir > 0 {
		first, last = t.left, other.right
	} else {
		first, last = other.left, t.right
	}

	turning := isTurning(first, last)

	// Deeper trees can also turn across the inner edge pairs
	if !turning && t.depth > 1 {
		turning = isTurning(t.right, other.right)
	}
	if !turning && t.depth > 1 {
		turning = isTurning(t.left, other.left)
	}

	b.merge(t, other, dir)

	if turning {
		return extTurning
	}
	return extOK
}

// draw runs one full NUTS iteration from init: repeated doubling in a random
// direction until a U-turn, a divergence, or the depth cap. The returned
// state is the next chain position; hitting the cap is a diagnostic, not an
// error, and the best available candidate is still returned.
func (b *builder) draw(init *state) (*state, Info) {
	b.initialEnergy = init.energy()
	b.div = nil
	b.accSum = 0.0
	b.leapfrogs = 0

	t := newTree(init)
	maxDepth := true
	for t.depth < b.maxDepth {
		dir := -1
		if b.gen.Bool() {
			dir = 1
		}

		stop := false
		switch b.extend(t, dir) {
		case extTurning, extDiverging:
			stop = true
		}
		if stop {
			maxDepth = false
			break
		}
	}

	info := Info{
		Depth:     t.depth,
		Diverged:  b.div,
		MaxDepth:  maxDepth,
		Leapfrogs: b.leapfrogs,
	}
	if b.leapfrogs > 0 {
		info.AcceptStat = b.accSum / float64(b.leapfrogs)
	}
	info.EnergyError = t.draw.energy() - b.initialEnergy

	return t.draw, info
}
