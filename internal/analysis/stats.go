package analysis

import (
	"math"
	"sort"
	"strconv"

	"github.com/montanaflynn/stats"
)

// Stat is a computed statistic. Degenerate inputs (empty samples, a single
// value, zero variance) yield Undefined, which marshals as null rather than 0.
type Stat float64

// Undefined marks a statistic that has no meaningful value.
var Undefined = Stat(math.NaN())

// Defined reports whether s holds a finite number.
func (s Stat) Defined() bool {
	f := float64(s)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (s Stat) MarshalJSON() ([]byte, error) {
	if !s.Defined() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(s), 'g', -1, 64)), nil
}

func (s Stat) MarshalYAML() (any, error) {
	if !s.Defined() {
		return nil, nil
	}
	return float64(s), nil
}

// Mean returns the arithmetic mean.
func Mean(vals []float64) Stat {
	m, err := stats.Mean(vals)
	if err != nil {
		return Undefined
	}
	return Stat(m)
}

// Median returns the middle value of vals (average of the two middle values
// for even lengths).
func Median(vals []float64) Stat {
	m, err := stats.Median(vals)
	if err != nil {
		return Undefined
	}
	return Stat(m)
}

// SampleStd returns the n-1 standard deviation.
func SampleStd(vals []float64) Stat {
	if len(vals) < 2 {
		return Undefined
	}
	sd, err := stats.StandardDeviationSample(vals)
	if err != nil {
		return Undefined
	}
	return Stat(sd)
}

// Pearson returns the correlation coefficient of two equally long samples.
// Positions where either value is NaN are skipped.
func Pearson(x, y []float64) Stat {
	if len(x) != len(y) {
		return Undefined
	}
	x, y = completePairs(x, y)
	if len(x) < 2 {
		return Undefined
	}
	sx, sy := SampleStd(x), SampleStd(y)
	if !sx.Defined() || !sy.Defined() || sx == 0 || sy == 0 {
		return Undefined
	}
	r, err := stats.Pearson(x, y)
	if err != nil || math.IsNaN(r) {
		return Undefined
	}
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return Stat(r)
}

func completePairs(x, y []float64) ([]float64, []float64) {
	cx := make([]float64, 0, len(x))
	cy := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		cx = append(cx, x[i])
		cy = append(cy, y[i])
	}
	return cx, cy
}

// Quantile returns the q-th quantile of vals using linear interpolation
// between closest ranks.
func Quantile(vals []float64, q float64) Stat {
	if len(vals) == 0 {
		return Undefined
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	return Stat(quantile(cp, q))
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// Description holds the descriptive statistics of one numeric column.
type Description struct {
	Count int  `json:"count" yaml:"count"`
	Mean  Stat `json:"mean" yaml:"mean"`
	Std   Stat `json:"std" yaml:"std"`
	Min   Stat `json:"min" yaml:"min"`
	P25   Stat `json:"25%" yaml:"25%"`
	P50   Stat `json:"50%" yaml:"50%"`
	P75   Stat `json:"75%" yaml:"75%"`
	Max   Stat `json:"max" yaml:"max"`
}

// Describe computes count, mean, std, min, quartiles and max.
func Describe(vals []float64) Description {
	d := Description{Count: len(vals), Mean: Mean(vals), Std: SampleStd(vals)}
	if len(vals) == 0 {
		d.Min, d.P25, d.P50, d.P75, d.Max = Undefined, Undefined, Undefined, Undefined, Undefined
		return d
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	d.Min = Stat(cp[0])
	d.P25 = Stat(quantile(cp, 0.25))
	d.P50 = Stat(quantile(cp, 0.5))
	d.P75 = Stat(quantile(cp, 0.75))
	d.Max = Stat(cp[len(cp)-1])
	return d
}
