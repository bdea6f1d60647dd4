package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/KaramelBytes/datalens/internal/dataset"
)

type jsonParser struct{}

func (jsonParser) Format() string { return "json" }

func (jsonParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".json")
}

// Parse reads a JSON array of flat objects. Keys are collected in first-seen
// order; objects lacking a key get a missing value for it.
func (jsonParser) Parse(content []byte) (*dataset.Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}
	var header []string
	index := map[string]int{}
	var objects []map[int]dataset.Value
	for n := 0; dec.More(); n++ {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		obj := map[int]dataset.Value{}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", n, err)
			}
			key, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("record %d: unexpected token %v", n, tok)
			}
			var raw any
			if err := dec.Decode(&raw); err != nil {
				return nil, fmt.Errorf("record %d field %q: %w", n, key, err)
			}
			v, err := jsonScalar(raw)
			if err != nil {
				return nil, fmt.Errorf("record %d field %q: %w", n, key, err)
			}
			j, ok := index[key]
			if !ok {
				j = len(header)
				index[key] = j
				header = append(header, key)
			}
			obj[j] = v
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		objects = append(objects, obj)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after array")
	}

	rows := make([]dataset.Record, len(objects))
	for i, obj := range objects {
		rec := make(dataset.Record, len(header))
		for j, v := range obj {
			rec[j] = v
		}
		rows[i] = rec
	}
	return dataset.New(header, rows), nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmpty
		}
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func jsonScalar(raw any) (dataset.Value, error) {
	switch v := raw.(type) {
	case nil:
		return dataset.NullValue(), nil
	case json.Number:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return dataset.Value{}, err
		}
		return dataset.ParsedNumber(f, v.String()), nil
	case string:
		return dataset.TextValue(v), nil
	case bool:
		return dataset.TextValue(strconv.FormatBool(v)), nil
	default:
		return dataset.Value{}, fmt.Errorf("nested %T values are not supported", raw)
	}
}
