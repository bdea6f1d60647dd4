package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/KaramelBytes/datalens/internal/dataset"
)

type csvParser struct{}

func (csvParser) Format() string { return "csv" }

func (csvParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".csv")
}

func (csvParser) Parse(content []byte) (*dataset.Dataset, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = uniqueNames(header)
	ncol := len(header)

	var rows []dataset.Record
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if len(rec) > ncol {
			return nil, fmt.Errorf("row %d: expected %d fields, saw %d", line, ncol, len(rec))
		}
		row := make(dataset.Record, ncol)
		for j, cell := range rec {
			row[j] = parseCell(cell)
		}
		rows = append(rows, row)
	}
	return dataset.New(header, rows), nil
}

func parseCell(cell string) dataset.Value {
	if dataset.IsMissingToken(cell) {
		return dataset.NullValue()
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
		return dataset.ParsedNumber(f, cell)
	}
	return dataset.TextValue(cell)
}

// uniqueNames fills blank header cells and disambiguates repeated names with a
// numeric suffix so every column stays addressable by name.
func uniqueNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := h
		if strings.TrimSpace(name) == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			out[i] = fmt.Sprintf("%s.%d", name, n+1)
			continue
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}
