package buffer

// CircularFloat is a circular buffer of float64 values holding a trailing
// window of the values appended to it. We use it to track the recent history
// of an adapted quantity (like the log step size) so the caller can look at
// window-level summaries instead of the raw last value.
type CircularFloat struct {
	buffer    []float64 // actual storage
	pos       int       // Current position in buffer
	BufSize   int       // BufSize is the fixed number of values maintained in memory
	Count     int       // Count is the number of values in memory. Will always be <= BufSize
	TotalSeen int64     // TotalSeen is the total number of times Add has been called
}

// NewCircularFloat creates a new circular buffer of totalSize.
func NewCircularFloat(totalSize int) *CircularFloat {
	if totalSize < 1 {
		totalSize = 1
	}

	return &CircularFloat{
		buffer:  make([]float64, totalSize),
		pos:     0,
		BufSize: totalSize,
		Count:   0,
	}
}

// Internal: return the next array position
func (c *CircularFloat) nextPos() int {
	return (c.pos + 1) % c.BufSize
}

// Add appends the given value to the buffer, overwriting the oldest entry
func (c *CircularFloat) Add(v float64) {
	c.TotalSeen++

	c.buffer[c.pos] = v
	c.pos = c.nextPos()

	c.Count++
	if c.Count > c.BufSize {
		c.Count = c.BufSize // max out
	}
}

// Full returns true once Add has been called at least BufSize times.
func (c *CircularFloat) Full() bool {
	return c.Count >= c.BufSize
}

// Mean returns the mean of the values currently in the window. Returns 0 for
// an empty window.
func (c *CircularFloat) Mean() float64 {
	if c.Count < 1 {
		return 0.0
	}

	sum := 0.0
	for i := 0; i < c.Count; i++ {
		sum += c.buffer[i]
	}
	return sum / float64(c.Count)
}

// Variance returns the (population) variance of the values currently in the
// window. Returns 0 for windows with fewer than 2 values.
func (c *CircularFloat) Variance() float64 {
	if c.Count < 2 {
		return 0.0
	}

	mean := c.Mean()
	sum := 0.0
	for i := 0; i < c.Count; i++ {
		d := c.buffer[i] - mean
		sum += d * d
	}
	return sum / float64(c.Count)
}
