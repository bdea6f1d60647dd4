package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/KaramelBytes/datalens/internal/dataset"
)

// Parser turns a fetched body into a raw dataset.
type Parser interface {
	Format() string
	CanParse(locator string) bool
	Parse(content []byte) (*dataset.Dataset, error)
}

var registry []Parser

// fallback is used when no registered parser claims the locator.
var fallback Parser = csvParser{}

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

// ErrEmpty indicates a body with no header row or no records container.
var ErrEmpty = errors.New("no data")

// DataFormatError reports a body that could not be parsed in the dispatched format.
type DataFormatError struct {
	Format string
	Source string
	Err    error
}

func (e *DataFormatError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("parse %s from %s: %v", e.Format, e.Source, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// ForLocator selects the parser for a locator by its path extension, defaulting
// to delimited text. Query strings and fragments are ignored.
func ForLocator(locator string) Parser {
	name := locatorPath(locator)
	for _, p := range registry {
		if p.CanParse(name) {
			return p
		}
	}
	return fallback
}

// Parse dispatches on the locator and parses content. Failures are returned as
// *DataFormatError.
func Parse(locator string, content []byte) (*dataset.Dataset, error) {
	p := ForLocator(locator)
	ds, err := p.Parse(content)
	if err != nil {
		return nil, &DataFormatError{Format: p.Format(), Source: locator, Err: err}
	}
	return ds, nil
}

func locatorPath(locator string) string {
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && u.Host != "" {
		return strings.ToLower(u.Path)
	}
	return strings.ToLower(locator)
}

func init() {
	Register(csvParser{})
	Register(jsonParser{})
}
