package realty

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction is wrapped by every ExtractionError
	ErrExtraction = errors.New("field extraction failed")

	errRealtyObjectMissing = errors.New("realty object not found at " + pathFlat)
)

// ExtractionError reports a document that could not be mapped to a record
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("extraction: %v", e.Err)
	}
	return fmt.Sprintf("extraction of %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtraction, e.Err}
}
