package ingest

import "fmt"

// RowProcessingError is a per-row failure. The row is left out of the draft
// sequence and counted; the run continues.
type RowProcessingError struct {
	Row int
	Err error
}

func (e *RowProcessingError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowProcessingError) Unwrap() error {
	return e.Err
}
