package parser

import "fmt"

// ExtractionError reports a PDF that could not be opened or parsed.
type ExtractionError struct {
	Path string
	Page int // 0 when the failure is not tied to a page
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("failed to extract %s page %d: %v", e.Path, e.Page, e.Err)
	}
	return fmt.Sprintf("failed to extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
