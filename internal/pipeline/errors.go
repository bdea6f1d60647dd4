package pipeline

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/datalens/internal/parser"
)

// ErrLocatorOverride is returned when a caller asks a Processor for a source
// other than the one it was constructed with.
var ErrLocatorOverride = errors.New("processor is bound to a different source; build a new processor")

// DataFormatError reports a fetched body that could not be parsed.
type DataFormatError = parser.DataFormatError

// SourceUnavailableError indicates the source could not be retrieved: a
// transport failure, an unreadable file or a non-2xx HTTP status.
type SourceUnavailableError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *SourceUnavailableError) Error() string {
	if e == nil {
		return "source unavailable"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("source unavailable at %s: status=%d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source unavailable at %s: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }
