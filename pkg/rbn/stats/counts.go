package stats

// Count is the outcome of testing a formula against every grounding of its
// domain.
type Count struct {
	Valid      int64 // groundings satisfying the formula
	Groundings int64 // groundings tested
}

// Proportion returns Valid/Groundings. The second result is false when no
// groundings were tested.
func (c Count) Proportion() (float64, bool) {
	if c.Groundings == 0 {
		return 0, false
	}
	return float64(c.Valid) / float64(c.Groundings), true
}

// Counter accumulates a Count one grounding at a time
type Counter struct {
	c Count
}

// NewCounter creates an empty counter
func NewCounter() *Counter {
	return &Counter{}
}

// Add records one tested grounding
func (c *Counter) Add(matched bool) {
	c.c.Groundings++
	if matched {
		c.c.Valid++
	}
}

// Count returns the accumulated totals
func (c *Counter) Count() Count {
	return c.c
}
