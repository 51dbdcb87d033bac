package kerncore

import (
	"math"
)

// readyWaitQuantile estimates a single percentile of the ready-queue wait
// time distribution with the P-square algorithm: O(1) per Update and O(1)
// Quantile, so Metrics can report P50/P90/P99 ready-wait latency without
// retaining a sample per scheduling event.
//
// Reference: Jain, R. and Chlamtac, I. (1985). "The P-square Algorithm for
// Dynamic Calculation of Quantiles and Histograms Without Storing
// Observations". Communications of the ACM, 28(10), pp. 1076-1085.
//
// Thread Safety: NOT thread-safe; Metrics serializes access with its own
// mutex.
type readyWaitQuantile struct {
	// p is the target quantile (0.0 to 1.0)
	p float64

	// q stores the 5 marker heights (values at markers)
	q [5]float64

	// n stores the 5 marker positions (actual positions, 0-indexed)
	n [5]int

	// np stores the 5 desired marker positions (idealized, floats)
	np [5]float64

	// dn stores the increments for desired marker positions
	dn [5]float64

	// initialized tracks whether we have enough observations
	initialized bool

	// count is the total number of observations received
	count int

	// initBuffer stores first 5 observations before algorithm starts
	initBuffer [5]float64
}

// newReadyWaitQuantile creates a ready-wait quantile estimator for the
// given percentile p, clamped to [0.0, 1.0] (e.g. 0.50 for P50, 0.99 for
// P99).
func newReadyWaitQuantile(p float64) *readyWaitQuantile {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}

	return &readyWaitQuantile{
		p:  p,
		dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

// Update folds one more ready-wait sample into the estimate. Metrics feeds
// time.Duration values, i.e. nanoseconds.
func (rq *readyWaitQuantile) Update(x float64) {
	rq.count++

	// Collect first 5 observations before starting the algorithm
	if rq.count <= 5 {
		rq.initBuffer[rq.count-1] = x
		if rq.count == 5 {
			rq.initialize()
		}
		return
	}

	// Find the cell k such that q[k] <= x < q[k+1]
	var k int
	if x < rq.q[0] {
		// x is new minimum
		rq.q[0] = x
		k = 0
	} else if x >= rq.q[4] {
		// x is new maximum
		rq.q[4] = x
		k = 3
	} else {
		// Linear search for the cell
		for k = 0; k < 4; k++ {
			if rq.q[k] <= x && x < rq.q[k+1] {
				break
			}
		}
	}

	// Increment positions of markers k+1 through 4
	for i := k + 1; i < 5; i++ {
		rq.n[i]++
	}

	// Update desired positions
	for i := 0; i < 5; i++ {
		rq.np[i] += rq.dn[i]
	}

	// Adjust marker heights if necessary
	for i := 1; i < 4; i++ {
		d := rq.np[i] - float64(rq.n[i])
		if (d >= 1 && rq.n[i+1]-rq.n[i] > 1) || (d <= -1 && rq.n[i-1]-rq.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}

			// Try parabolic adjustment
			qPrime := rq.parabolic(i, sign)

			// Check if parabolic adjustment is valid
			if rq.q[i-1] < qPrime && qPrime < rq.q[i+1] {
				rq.q[i] = qPrime
			} else {
				// Use linear adjustment
				rq.q[i] = rq.linear(i, sign)
			}
			rq.n[i] += sign
		}
	}
}

// initialize sets up the markers from the first 5 observations.
func (rq *readyWaitQuantile) initialize() {
	// Sort the first 5 observations (insertion sort for small array)
	for i := 1; i < 5; i++ {
		key := rq.initBuffer[i]
		j := i - 1
		for j >= 0 && rq.initBuffer[j] > key {
			rq.initBuffer[j+1] = rq.initBuffer[j]
			j--
		}
		rq.initBuffer[j+1] = key
	}

	// Initialize marker heights
	for i := 0; i < 5; i++ {
		rq.q[i] = rq.initBuffer[i]
		rq.n[i] = i
	}

	// Initialize desired positions
	rq.np = [5]float64{0, 2 * rq.p, 4 * rq.p, 2 + 2*rq.p, 4}

	rq.initialized = true
}

// parabolic computes the P-square parabolic adjustment formula.
func (rq *readyWaitQuantile) parabolic(i, d int) float64 {
	df := float64(d)
	ni := float64(rq.n[i])
	niPrev := float64(rq.n[i-1])
	niNext := float64(rq.n[i+1])

	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (rq.q[i+1] - rq.q[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (rq.q[i] - rq.q[i-1]) / (ni - niPrev)

	return rq.q[i] + term1*(term2+term3)
}

// linear computes the P-square linear adjustment formula.
func (rq *readyWaitQuantile) linear(i, d int) float64 {
	if d == 1 {
		return rq.q[i] + (rq.q[i+1]-rq.q[i])/float64(rq.n[i+1]-rq.n[i])
	}
	return rq.q[i] - (rq.q[i]-rq.q[i-1])/float64(rq.n[i]-rq.n[i-1])
}

// Quantile returns the current estimated ready-wait quantile, in the same
// units Update was fed.
func (rq *readyWaitQuantile) Quantile() float64 {
	if rq.count == 0 {
		return 0
	}

	if rq.count < 5 {
		// Not enough observations yet: sort the raw buffer and index
		// into it directly rather than running the marker algorithm.
		sorted := make([]float64, rq.count)
		copy(sorted, rq.initBuffer[:rq.count])
		for i := 1; i < rq.count; i++ {
			key := sorted[i]
			j := i - 1
			for j >= 0 && sorted[j] > key {
				sorted[j+1] = sorted[j]
				j--
			}
			sorted[j+1] = key
		}
		index := int(float64(rq.count-1) * rq.p)
		if index >= rq.count {
			index = rq.count - 1
		}
		return sorted[index]
	}

	// The quantile is at marker 2, the middle marker for the target
	// quantile.
	return rq.q[2]
}

// Count returns the number of samples folded in so far.
func (rq *readyWaitQuantile) Count() int {
	return rq.count
}

// Max returns the largest ready-wait sample observed.
func (rq *readyWaitQuantile) Max() float64 {
	if rq.count == 0 {
		return 0
	}
	if rq.count < 5 {
		max := rq.initBuffer[0]
		for i := 1; i < rq.count; i++ {
			if rq.initBuffer[i] > max {
				max = rq.initBuffer[i]
			}
		}
		return max
	}
	return rq.q[4]
}

// readyWaitDistribution tracks the P50/P90/P99 (or whatever percentiles
// it is built with) of a kernel's ready-queue wait times, one
// readyWaitQuantile estimator per tracked percentile, plus running
// sum/count/max for Mean/Max.
//
// Thread Safety: NOT thread-safe; Metrics serializes access with its own
// mutex.
type readyWaitDistribution struct {
	estimators []*readyWaitQuantile
	sum        float64
	count      int
	max        float64
}

// newReadyWaitDistribution creates a distribution tracking the given
// percentiles (each in [0.0, 1.0]).
func newReadyWaitDistribution(percentiles ...float64) *readyWaitDistribution {
	d := &readyWaitDistribution{
		estimators: make([]*readyWaitQuantile, len(percentiles)),
		max:        -math.MaxFloat64,
	}
	for i, p := range percentiles {
		d.estimators[i] = newReadyWaitQuantile(p)
	}
	return d
}

// Update folds one more ready-wait sample into every tracked percentile.
func (d *readyWaitDistribution) Update(x float64) {
	d.count++
	d.sum += x
	if x > d.max {
		d.max = x
	}
	for _, est := range d.estimators {
		est.Update(x)
	}
}

// Quantile returns the estimate for the i-th percentile this distribution
// was constructed with.
func (d *readyWaitDistribution) Quantile(i int) float64 {
	if i < 0 || i >= len(d.estimators) {
		return 0
	}
	return d.estimators[i].Quantile()
}

// Count returns the total number of ready-wait samples recorded.
func (d *readyWaitDistribution) Count() int {
	return d.count
}

// Sum returns the sum of all ready-wait samples recorded.
func (d *readyWaitDistribution) Sum() float64 {
	return d.sum
}

// Max returns the largest ready-wait sample recorded.
func (d *readyWaitDistribution) Max() float64 {
	if d.count == 0 {
		return 0
	}
	return d.max
}

// Mean returns the arithmetic mean ready-wait time.
func (d *readyWaitDistribution) Mean() float64 {
	if d.count == 0 {
		return 0
	}
	return d.sum / float64(d.count)
}

// Reset clears all state for reuse.
func (d *readyWaitDistribution) Reset() {
	d.sum = 0
	d.count = 0
	d.max = -math.MaxFloat64
	for _, est := range d.estimators {
		*est = *newReadyWaitQuantile(est.p)
	}
}
