package stats

import "math"

// Epsilon is the tolerance used when comparing probabilities.
const Epsilon = 1e-5

// Calculator turns satisfier counts into conditional probabilities
type Calculator struct {
	epsilon float64 // additive smoothing constant
}

// NewCalculator creates a calculator with the given smoothing constant.
// Zero gives the plain maximum likelihood estimate.
func NewCalculator(epsilon float64) *Calculator {
	if epsilon < 0 {
		epsilon = 0
	}
	return &Calculator{epsilon: epsilon}
}

// Smoothing returns the calculator's smoothing constant.
func (c *Calculator) Smoothing() float64 { return c.epsilon }

// Conditional estimates P(child=v | parents=j) from counts
//
// P = (N_vj + ε) / (N_j + ε·|range|)
//
// Where:
//   - N_vj = groundings satisfying the child value and the parent assignment
//   - N_j  = groundings satisfying the parent assignment
//   - |range| = size of the child functor's range
//   - ε = smoothing constant
//
// The second result is false when the estimate is undefined (N_j = 0 and no
// smoothing).
func (c *Calculator) Conditional(nVJ, nJ int64, rangeSize int) (float64, bool) {
	denominator := float64(nJ) + c.epsilon*float64(rangeSize)
	if denominator == 0 {
		return 0, false
	}
	return (float64(nVJ) + c.epsilon) / denominator, true
}

// Log returns the natural log of a probability; zero maps to -Inf.
func Log(p float64) float64 {
	return math.Log(p)
}

// MeanLog averages log probabilities. The second result is false for an
// empty input.
func MeanLog(logs []float64) (float64, bool) {
	if len(logs) == 0 {
		return 0, false
	}
	var sum float64
	for _, l := range logs {
		sum += l
	}
	return sum / float64(len(logs)), true
}

// ProbEqual compares two probabilities within Epsilon.
func ProbEqual(p1, p2 float64) bool {
	return math.Abs(p1-p2) < Epsilon
}
