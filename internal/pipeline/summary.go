package pipeline

import (
	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/KaramelBytes/datalens/internal/dataset"
)

// Summary is a structural overview of a dataset.
type Summary struct {
	TotalRows     int                          `json:"total_rows" yaml:"total_rows"`
	TotalColumns  int                          `json:"total_columns" yaml:"total_columns"`
	ColumnTypes   *analysis.OrderedMap[string] `json:"column_types" yaml:"column_types"`
	MissingValues *analysis.OrderedMap[int]    `json:"missing_values" yaml:"missing_values"`
	SampleData    []dataset.Row                `json:"sample_data" yaml:"sample_data"`
}

// Summarize reports row and column counts, declared column types, missing
// counts per column and the first sampleRows records.
func Summarize(ds *dataset.Dataset, sampleRows int) *Summary {
	s := &Summary{
		TotalRows:     ds.Len(),
		TotalColumns:  len(ds.Columns),
		ColumnTypes:   analysis.NewOrderedMap[string](),
		MissingValues: analysis.NewOrderedMap[int](),
		SampleData:    ds.Head(sampleRows),
	}
	for j, c := range ds.Columns {
		s.ColumnTypes.Set(c.Name, string(c.Type))
		s.MissingValues.Set(c.Name, ds.MissingCount(j))
	}
	return s
}
