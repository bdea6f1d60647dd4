package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/logging"
	"github.com/KaramelBytes/datalens/internal/metrics"
)

// UnknownText fills text columns that have no present value at all.
const UnknownText = "unknown"

// CleanReport describes what Clean changed.
type CleanReport struct {
	RowsIn            int             `json:"rows_in" yaml:"rows_in"`
	RowsOut           int             `json:"rows_out" yaml:"rows_out"`
	DuplicatesRemoved int             `json:"duplicates_removed" yaml:"duplicates_removed"`
	Imputations       []Imputation    `json:"imputations" yaml:"imputations"`
	OutlierFilters    []OutlierFilter `json:"outlier_filters" yaml:"outlier_filters"`
}

// Imputation records the fill value used for a column's missing cells.
type Imputation struct {
	Column string        `json:"column" yaml:"column"`
	Count  int           `json:"count" yaml:"count"`
	Value  dataset.Value `json:"value" yaml:"value"`
}

// OutlierFilter records one pass of the 3-sigma filter. Mean and Std are
// measured over the rows that survived the previous columns' passes.
type OutlierFilter struct {
	Column  string        `json:"column" yaml:"column"`
	Mean    analysis.Stat `json:"mean" yaml:"mean"`
	Std     analysis.Stat `json:"std" yaml:"std"`
	Lower   analysis.Stat `json:"lower" yaml:"lower"`
	Upper   analysis.Stat `json:"upper" yaml:"upper"`
	Removed int           `json:"removed" yaml:"removed"`
}

// Clean returns the cleaned dataset for the processor's source, fetching first
// when nothing is cached.
func (p *Processor) Clean(ctx context.Context) (*dataset.Dataset, *CleanReport, error) {
	if p.clean != nil {
		return p.clean, p.cleanReport, nil
	}
	res, err := p.Fetch(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("clean: %w", err)
	}
	start := time.Now()
	ds, rep := Clean(res.Data, p.logger)
	metrics.StageDurationSeconds.WithLabelValues("clean").Observe(time.Since(start).Seconds())
	p.clean, p.cleanReport = ds, &rep
	return p.clean, p.cleanReport, nil
}

// Clean normalizes column names, drops exact duplicate records, normalizes
// text, imputes missing values and removes 3-sigma outliers. The raw dataset
// is not modified.
//
// Outliers are filtered one numeric column at a time in column order, so each
// column's bounds are measured on the rows left by the columns before it.
func Clean(raw *dataset.Dataset, logger *zap.Logger) (*dataset.Dataset, CleanReport) {
	logger = logging.OrNop(logger)
	ds := raw.Clone()
	rep := CleanReport{RowsIn: ds.Len()}

	normalizeNames(ds)

	seen := make(map[string]struct{}, ds.Len())
	rep.DuplicatesRemoved = ds.Filter(func(r dataset.Record) bool {
		k := r.Key()
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
	metrics.RowsRemoved.WithLabelValues("duplicate").Add(float64(rep.DuplicatesRemoved))

	for j, c := range ds.Columns {
		if c.Type != dataset.Object {
			continue
		}
		for _, r := range ds.Rows {
			if r[j].Kind == dataset.Text {
				r[j] = dataset.TextValue(strings.ToLower(strings.TrimSpace(r[j].Str)))
			}
		}
	}

	for j, c := range ds.Columns {
		missing := ds.MissingCount(j)
		if missing == 0 {
			continue
		}
		var fill dataset.Value
		if c.Type.Numeric() {
			fill = dataset.NumberValue(float64(analysis.Median(ds.Floats(j))))
		} else {
			fill = dataset.TextValue(modeText(ds, j))
		}
		for _, r := range ds.Rows {
			if r[j].IsNull() {
				r[j] = fill
			}
		}
		rep.Imputations = append(rep.Imputations, Imputation{Column: c.Name, Count: missing, Value: fill})
		logger.Debug("imputed missing values", zap.String("column", c.Name), zap.Int("count", missing), zap.String("value", fill.String()))
	}

	for _, j := range ds.NumericColumns() {
		f := filterOutliers(ds, j)
		if f.Removed > 0 {
			logger.Debug("removed outliers", zap.String("column", f.Column), zap.Int("count", f.Removed))
			metrics.RowsRemoved.WithLabelValues("outlier").Add(float64(f.Removed))
		}
		rep.OutlierFilters = append(rep.OutlierFilters, f)
	}

	rep.RowsOut = ds.Len()
	logger.Info("cleaned dataset",
		zap.Int("rows_in", rep.RowsIn),
		zap.Int("rows_out", rep.RowsOut),
		zap.Int("duplicates_removed", rep.DuplicatesRemoved),
	)
	return ds, rep
}

// normalizeNames lowercases column names and replaces spaces with underscores.
// Names that collide after normalization get a numeric suffix.
func normalizeNames(ds *dataset.Dataset) {
	seen := map[string]int{}
	for i := range ds.Columns {
		name := strings.ReplaceAll(strings.ToLower(ds.Columns[i].Name), " ", "_")
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		ds.Columns[i].Name = name
	}
}

// modeText returns the most frequent present text in column j, preferring the
// lexicographically smallest value on ties, or UnknownText if none is present.
func modeText(ds *dataset.Dataset, j int) string {
	counts := map[string]int{}
	for _, r := range ds.Rows {
		if !r[j].IsNull() {
			counts[r[j].String()]++
		}
	}
	if len(counts) == 0 {
		return UnknownText
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best
}

// filterOutliers drops records whose value in column j falls outside
// mean ± 3 sample standard deviations of the current rows.
func filterOutliers(ds *dataset.Dataset, j int) OutlierFilter {
	f := OutlierFilter{
		Column: ds.Columns[j].Name,
		Mean:   analysis.Undefined,
		Std:    analysis.Undefined,
		Lower:  analysis.Undefined,
		Upper:  analysis.Undefined,
	}
	vals := ds.Floats(j)
	if len(vals) < 2 {
		return f
	}
	f.Mean, f.Std = analysis.Mean(vals), analysis.SampleStd(vals)
	if !f.Std.Defined() || f.Std == 0 {
		return f
	}
	lo := float64(f.Mean) - 3*float64(f.Std)
	hi := float64(f.Mean) + 3*float64(f.Std)
	f.Lower, f.Upper = analysis.Stat(lo), analysis.Stat(hi)
	f.Removed = ds.Filter(func(r dataset.Record) bool {
		v := r[j].Num
		return v >= lo && v <= hi
	})
	return f
}
