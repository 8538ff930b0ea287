package profile

import (
	"math"
	"math/rand/v2"
	"sort"
)

// welford keeps a running mean and variance
type welford struct {
	n        int
	mean, m2 float64
	min, max float64
}

func (w *welford) add(x float64) {
	w.n++
	if w.n == 1 {
		w.min, w.max = x, x
	} else {
		w.min = math.Min(w.min, x)
		w.max = math.Max(w.max, x)
	}
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (x - w.mean)
}

// stddev is the sample standard deviation; 0 below two values
func (w *welford) stddev() float64 {
	if w.n < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n-1))
}

// reservoir is a fixed-size uniform sample (Algorithm R) with a seeded
// source, so identical input always yields the identical sample.
type reservoir struct {
	size   int
	seen   int
	values []float64
	rng    *rand.Rand
}

func newReservoir(size int, seed uint64) *reservoir {
	return &reservoir{
		size:   size,
		values: make([]float64, 0, min(size, 1024)),
		rng:    rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15)),
	}
}

func (r *reservoir) add(x float64) {
	r.seen++
	if len(r.values) < r.size {
		r.values = append(r.values, x)
		return
	}
	if j := r.rng.IntN(r.seen); j < r.size {
		r.values[j] = x
	}
}

// Quantile returns the q-quantile of sorted with linear interpolation
// between closest ranks. sorted must be non-empty and ascending.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// iqrFences returns the k*IQR fences of values, or ok=false when the
// spread is zero and no value can be called an outlier.
func iqrFences(values []float64, k float64) (lower, upper float64, ok bool) {
	if len(values) < 4 {
		return 0, 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1
	if iqr <= 0 {
		return 0, 0, false
	}
	return q1 - k*iqr, q3 + k*iqr, true
}
