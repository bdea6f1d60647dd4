package pipeline

import "github.com/KaramelBytes/datalens/internal/dataset"

var demoHeader = []string{
	"Country",
	"Regional indicator",
	"Ladder score",
	"GDP per capita",
	"Social support",
	"Healthy life expectancy",
	"Freedom to make life choices",
	"Generosity",
	"Perceptions of corruption",
}

type demoRow struct {
	country, region string
	values          [7]float64
}

var demoRows = []demoRow{
	{"Japan", "East Asia", [7]float64{5.9, 1.4, 0.9, 0.88, 0.55, 0.1, 0.6}},
	{"USA", "North America", [7]float64{6.8, 1.5, 0.85, 0.77, 0.54, 0.15, 0.5}},
	{"Germany", "Western Europe", [7]float64{7.1, 1.45, 0.9, 0.89, 0.60, 0.20, 0.4}},
	{"UK", "Western Europe", [7]float64{6.7, 1.42, 0.89, 0.9, 0.58, 0.25, 0.45}},
	{"France", "Western Europe", [7]float64{6.5, 1.4, 0.88, 0.87, 0.52, 0.18, 0.55}},
	{"Canada", "North America", [7]float64{7.2, 1.45, 0.92, 0.9, 0.62, 0.28, 0.35}},
	{"Australia", "Oceania", [7]float64{7.3, 1.45, 0.91, 0.91, 0.63, 0.30, 0.33}},
	{"Sweden", "Western Europe", [7]float64{7.4, 1.48, 0.93, 0.92, 0.64, 0.32, 0.25}},
	{"Denmark", "Western Europe", [7]float64{7.6, 1.5, 0.95, 0.93, 0.66, 0.34, 0.2}},
	{"Finland", "Western Europe", [7]float64{7.8, 1.5, 0.96, 0.94, 0.67, 0.35, 0.18}},
}

// DemoDataset returns the built-in fallback dataset: ten countries with the
// nine World Happiness Report columns, in raw (un-normalized) form.
func DemoDataset() *dataset.Dataset {
	rows := make([]dataset.Record, len(demoRows))
	for i, r := range demoRows {
		rec := dataset.Record{dataset.TextValue(r.country), dataset.TextValue(r.region)}
		for _, v := range r.values {
			rec = append(rec, dataset.NumberValue(v))
		}
		rows[i] = rec
	}
	return dataset.New(demoHeader, rows)
}
