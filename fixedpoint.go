package kerncore

// Fixed is a signed 17.14 fixed-point number: value v encodes the real
// number v / 2^fixedQ. It backs every MLFQS computation (recent_cpu,
// load_avg, and the priority formula derived from them), matching the
// integer-only fixed-point convention the source kernel uses because the
// scheduler runs before floating point is usable.
type Fixed int64

const (
	fixedQ = 14
	fixedF = int64(1) << fixedQ
)

// FromInt converts an integer to Fixed.
func FromInt(n int) Fixed { return Fixed(int64(n) * fixedF) }

// Add returns x + y.
func (x Fixed) Add(y Fixed) Fixed { return x + y }

// Sub returns x - y.
func (x Fixed) Sub(y Fixed) Fixed { return x - y }

// AddInt returns x + FromInt(n).
func (x Fixed) AddInt(n int) Fixed { return x + FromInt(n) }

// SubInt returns x - FromInt(n).
func (x Fixed) SubInt(n int) Fixed { return x - FromInt(n) }

// Mul returns x * y, computed in the wide (int64) domain before rescaling.
func (x Fixed) Mul(y Fixed) Fixed { return Fixed((int64(x) * int64(y)) / fixedF) }

// Div returns x / y.
func (x Fixed) Div(y Fixed) Fixed { return Fixed((int64(x) * fixedF) / int64(y)) }

// MulInt returns x * n.
func (x Fixed) MulInt(n int) Fixed { return Fixed(int64(x) * int64(n)) }

// DivInt returns x / n.
func (x Fixed) DivInt(n int) Fixed { return Fixed(int64(x) / int64(n)) }

// ToIntZero truncates toward zero.
func (x Fixed) ToIntZero() int { return int(int64(x) / fixedF) }

// ToIntNearest rounds to the nearest integer, half away from zero.
func (x Fixed) ToIntNearest() int {
	if x == 0 {
		return 0
	}
	if x > 0 {
		return int((int64(x) + fixedF/2) / fixedF)
	}
	return int((int64(x) - fixedF/2) / fixedF)
}

// fixed-point coefficients used by the MLFQS recompute formulas, held as
// Fixed rather than recomputed per call since they are compile-time
// constants of the representation.
var (
	loadAvgDecay   = FromInt(59).Div(FromInt(60)) // 59/60
	readyThreadsWt = FromInt(1).Div(FromInt(60))  // 1/60
)

// mlfqsPriority computes clamp(PRI_MAX - to_int_nearest(recent_cpu/4) -
// nice*2, PRI_MIN, PRI_MAX).
func mlfqsPriority(recentCPU Fixed, nice int) int {
	penalty := recentCPU.DivInt(4).ToIntNearest()
	p := PriMax - penalty - nice*2
	if p < PriMin {
		return PriMin
	}
	if p > PriMax {
		return PriMax
	}
	return p
}

// mlfqsRecentCPU computes (2*load_avg / (2*load_avg + 1)) * recent_cpu +
// nice, every second.
func mlfqsRecentCPU(recentCPU, loadAvg Fixed, nice int) Fixed {
	twice := loadAvg.MulInt(2)
	coeff := twice.Div(twice.AddInt(1))
	return coeff.Mul(recentCPU).AddInt(nice)
}

// mlfqsLoadAvg computes (59/60)*load_avg + (1/60)*readyThreads, every
// second.
func mlfqsLoadAvg(loadAvg Fixed, readyThreads int) Fixed {
	return loadAvgDecay.Mul(loadAvg).Add(readyThreadsWt.MulInt(readyThreads))
}
