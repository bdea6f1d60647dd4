package analysis

import (
	"math"
	"sort"

	"github.com/KaramelBytes/datalens/internal/dataset"
)

// Category labels in ascending order.
const (
	CategoryLow        = "low"
	CategoryMediumLow  = "medium-low"
	CategoryMediumHigh = "medium-high"
	CategoryHigh       = "high"
)

// Categories lists the quartile labels from lowest to highest.
var Categories = []string{CategoryLow, CategoryMediumLow, CategoryMediumHigh, CategoryHigh}

const (
	topN       = 10
	factorTopN = 5
)

// Schema names the columns that drive the optional analytical blocks.
type Schema struct {
	Score    string
	Region   string
	Entity   string
	Year     string
	Category string
}

// DefaultSchema matches the World Happiness Report layout after cleaning.
func DefaultSchema() Schema {
	return Schema{
		Score:    "ladder_score",
		Region:   "regional_indicator",
		Entity:   "country",
		Year:     "year",
		Category: "happiness_category",
	}
}

// Report is the analytical summary of a cleaned dataset. Blocks whose
// required columns are absent are nil and omitted when marshaled.
type Report struct {
	Stats                   *OrderedMap[Description]       `json:"stats" yaml:"stats"`
	RegionHappiness         *OrderedMap[Stat]              `json:"region_happiness,omitempty" yaml:"region_happiness,omitempty"`
	RegionHappinessStd      *OrderedMap[Stat]              `json:"region_happiness_std,omitempty" yaml:"region_happiness_std,omitempty"`
	FactorCorrelations      *OrderedMap[Stat]              `json:"factor_correlations,omitempty" yaml:"factor_correlations,omitempty"`
	CorrelationMatrix       *OrderedMap[*OrderedMap[Stat]] `json:"correlation_matrix,omitempty" yaml:"correlation_matrix,omitempty"`
	HappinessCategoryStats  *OrderedMap[*OrderedMap[Stat]] `json:"happiness_category_stats,omitempty" yaml:"happiness_category_stats,omitempty"`
	HappinessCategoryCounts *OrderedMap[int]               `json:"happiness_category_counts,omitempty" yaml:"happiness_category_counts,omitempty"`
	TopHappyCountries       *OrderedMap[Stat]              `json:"top_happy_countries,omitempty" yaml:"top_happy_countries,omitempty"`
	BottomHappyCountries    *OrderedMap[Stat]              `json:"bottom_happy_countries,omitempty" yaml:"bottom_happy_countries,omitempty"`
	FactorRankings          *OrderedMap[*OrderedMap[Stat]] `json:"factor_rankings,omitempty" yaml:"factor_rankings,omitempty"`
	Data                    []dataset.Row                  `json:"data" yaml:"data"`

	// Quartiles holds the category boundaries when the category block ran.
	Quartiles *Quartiles `json:"-" yaml:"-"`
}

// Quartiles are the 25th, 50th and 75th percentiles of the score column.
type Quartiles struct {
	P25, P50, P75 float64
}

// Categorize assigns a quartile label; boundary values fall in the lower bucket.
func (q Quartiles) Categorize(score float64) string {
	switch {
	case score <= q.P25:
		return CategoryLow
	case score <= q.P50:
		return CategoryMediumLow
	case score <= q.P75:
		return CategoryMediumHigh
	default:
		return CategoryHigh
	}
}

// Analyze computes the report over a cleaned dataset and returns it together
// with the analyzed dataset (a copy carrying the category column when the
// score column is available). The input is not modified.
func Analyze(clean *dataset.Dataset, schema Schema) (*Report, *dataset.Dataset) {
	ds := clean.Clone()
	rep := &Report{Stats: describeAll(ds)}

	if means, stds, ok := regionBlock(ds, schema); ok {
		rep.RegionHappiness = means
		rep.RegionHappinessStd = stds
	}
	if factors, matrix, ok := correlationBlock(ds, schema); ok {
		rep.FactorCorrelations = factors
		rep.CorrelationMatrix = matrix
	}
	if q, ok := quartileBlock(ds, schema); ok {
		rep.Quartiles = &q
		score := ds.Index(schema.Score)
		ds.SetColumn(dataset.Column{Name: schema.Category, Type: dataset.Object}, func(r dataset.Record) dataset.Value {
			return dataset.TextValue(q.Categorize(r[score].Num))
		})
		numeric := ds.NumericColumns()
		rep.HappinessCategoryStats, rep.HappinessCategoryCounts = categoryStats(ds, numeric, ds.Index(schema.Category))
	}
	if top, bottom, ok := scoreRankings(ds, schema); ok {
		rep.TopHappyCountries = top
		rep.BottomHappyCountries = bottom
	}
	if rankings, ok := factorRankings(ds, schema); ok {
		rep.FactorRankings = rankings
	}
	rep.Data = ds.Records()
	return rep, ds
}

func describeAll(ds *dataset.Dataset) *OrderedMap[Description] {
	out := NewOrderedMap[Description]()
	for _, j := range ds.NumericColumns() {
		out.Set(ds.Columns[j].Name, Describe(ds.Floats(j)))
	}
	return out
}

// numericColumn returns the index of name when it exists and holds numbers.
func numericColumn(ds *dataset.Dataset, name string) (int, bool) {
	j := ds.Index(name)
	if j < 0 || !ds.Columns[j].Type.Numeric() {
		return -1, false
	}
	return j, true
}

func regionBlock(ds *dataset.Dataset, schema Schema) (means, stds *OrderedMap[Stat], ok bool) {
	region := ds.Index(schema.Region)
	score, hasScore := numericColumn(ds, schema.Score)
	if region < 0 || !hasScore {
		return nil, nil, false
	}
	var order []string
	groups := map[string][]float64{}
	for _, r := range ds.Rows {
		key := r[region].String()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r[score].Num)
	}

	type regionMean struct {
		name string
		mean Stat
	}
	ranked := make([]regionMean, 0, len(order))
	for _, k := range order {
		ranked = append(ranked, regionMean{name: k, mean: Mean(groups[k])})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].mean > ranked[j].mean })
	means = NewOrderedMap[Stat]()
	for _, rm := range ranked {
		means.Set(rm.name, rm.mean)
	}

	names := append([]string(nil), order...)
	sort.Strings(names)
	stds = NewOrderedMap[Stat]()
	for _, k := range names {
		stds.Set(k, SampleStd(groups[k]))
	}
	return means, stds, true
}

func correlationBlock(ds *dataset.Dataset, schema Schema) (factors *OrderedMap[Stat], matrix *OrderedMap[*OrderedMap[Stat]], ok bool) {
	score, hasScore := numericColumn(ds, schema.Score)
	numeric := ds.NumericColumns()
	if !hasScore || len(numeric) < 2 {
		return nil, nil, false
	}
	cols := make([][]float64, len(numeric))
	for i, j := range numeric {
		cols[i] = ds.Aligned(j)
	}
	m := CorrelationMatrix(cols)

	matrix = NewOrderedMap[*OrderedMap[Stat]]()
	for a, ja := range numeric {
		row := NewOrderedMap[Stat]()
		for b, jb := range numeric {
			row.Set(ds.Columns[jb].Name, m[a][b])
		}
		matrix.Set(ds.Columns[ja].Name, row)
	}

	var scorePos int
	for i, j := range numeric {
		if j == score {
			scorePos = i
		}
	}
	pairs := make([]Entry[Stat], 0, len(numeric)-1)
	for i, j := range numeric {
		if j == score {
			continue
		}
		pairs = append(pairs, Entry[Stat]{Key: ds.Columns[j].Name, Value: m[scorePos][i]})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i].Value, pairs[j].Value
		if !a.Defined() || !b.Defined() {
			return a.Defined() && !b.Defined()
		}
		return math.Abs(float64(a)) > math.Abs(float64(b))
	})
	factors = NewOrderedMap[Stat]()
	for _, p := range pairs {
		factors.Set(p.Key, p.Value)
	}
	return factors, matrix, true
}

// CorrelationMatrix computes pairwise Pearson coefficients. Each pair is
// computed once and mirrored, so the result is exactly symmetric. A column
// without variance has an undefined diagonal and undefined correlations.
func CorrelationMatrix(cols [][]float64) [][]Stat {
	n := len(cols)
	m := make([][]Stat, n)
	for i := range m {
		m[i] = make([]Stat, n)
	}
	for i := 0; i < n; i++ {
		present, _ := completePairs(cols[i], cols[i])
		sd := SampleStd(present)
		if sd.Defined() && sd > 0 {
			m[i][i] = 1
		} else {
			m[i][i] = Undefined
		}
		for j := i + 1; j < n; j++ {
			r := Pearson(cols[i], cols[j])
			m[i][j] = r
			m[j][i] = r
		}
	}
	return m
}

func quartileBlock(ds *dataset.Dataset, schema Schema) (Quartiles, bool) {
	score, ok := numericColumn(ds, schema.Score)
	if !ok || ds.Len() == 0 || schema.Category == schema.Score {
		return Quartiles{}, false
	}
	vals := ds.Floats(score)
	return Quartiles{
		P25: float64(Quantile(vals, 0.25)),
		P50: float64(Quantile(vals, 0.5)),
		P75: float64(Quantile(vals, 0.75)),
	}, true
}

// categoryStats computes per-category means of each numeric column (keyed by
// column, then category) and per-category counts ordered by descending count.
func categoryStats(ds *dataset.Dataset, numeric []int, category int) (*OrderedMap[*OrderedMap[Stat]], *OrderedMap[int]) {
	members := map[string][]int{}
	for i, r := range ds.Rows {
		label := r[category].Str
		members[label] = append(members[label], i)
	}

	means := NewOrderedMap[*OrderedMap[Stat]]()
	for _, j := range numeric {
		perCat := NewOrderedMap[Stat]()
		for _, label := range Categories {
			idx, ok := members[label]
			if !ok {
				continue
			}
			vals := make([]float64, len(idx))
			for k, i := range idx {
				vals[k] = ds.Rows[i][j].Num
			}
			perCat.Set(label, Mean(vals))
		}
		means.Set(ds.Columns[j].Name, perCat)
	}

	labels := make([]string, 0, len(members))
	for _, label := range Categories {
		if _, ok := members[label]; ok {
			labels = append(labels, label)
		}
	}
	sort.SliceStable(labels, func(a, b int) bool { return len(members[labels[a]]) > len(members[labels[b]]) })
	counts := NewOrderedMap[int]()
	for _, label := range labels {
		counts.Set(label, len(members[label]))
	}
	return means, counts
}

// rankBy returns row indices ordered by column j; equal values keep input order.
func rankBy(ds *dataset.Dataset, j int, descending bool) []int {
	idx := make([]int, ds.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := ds.Rows[idx[a]][j].Num, ds.Rows[idx[b]][j].Num
		if descending {
			return va > vb
		}
		return va < vb
	})
	return idx
}

func ranking(ds *dataset.Dataset, entity, j int, descending bool, n int) *OrderedMap[Stat] {
	out := NewOrderedMap[Stat]()
	order := rankBy(ds, j, descending)
	if len(order) > n {
		order = order[:n]
	}
	for _, i := range order {
		out.Set(ds.Rows[i][entity].String(), Stat(ds.Rows[i][j].Num))
	}
	return out
}

func scoreRankings(ds *dataset.Dataset, schema Schema) (top, bottom *OrderedMap[Stat], ok bool) {
	entity := ds.Index(schema.Entity)
	score, hasScore := numericColumn(ds, schema.Score)
	if entity < 0 || !hasScore {
		return nil, nil, false
	}
	return ranking(ds, entity, score, true, topN), ranking(ds, entity, score, false, topN), true
}

func factorRankings(ds *dataset.Dataset, schema Schema) (*OrderedMap[*OrderedMap[Stat]], bool) {
	entity := ds.Index(schema.Entity)
	if entity < 0 {
		return nil, false
	}
	out := NewOrderedMap[*OrderedMap[Stat]]()
	for _, j := range ds.NumericColumns() {
		name := ds.Columns[j].Name
		if name == schema.Score || name == schema.Year || j == entity {
			continue
		}
		out.Set(name, ranking(ds, entity, j, true, factorTopN))
	}
	return out, true
}
