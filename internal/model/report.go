package model

// SubmissionReport summarizes one ingestion run. Succeeded + Failed always
// equals TotalAttempted; the row and geocode counters are informational.
type SubmissionReport struct {
	TotalAttempted  int      `json:"total_attempted"`
	Succeeded       int      `json:"succeeded"`
	Failed          int      `json:"failed"`
	FailureMessages []string `json:"failure_messages"`

	RowsSkipped     int      `json:"rows_skipped"`
	RowErrors       []string `json:"row_errors,omitempty"`
	GeocodeFailures int      `json:"geocode_failures"`
}

// NewSubmissionReport returns an empty report with non-nil message slices so
// it encodes as [] rather than null.
func NewSubmissionReport() *SubmissionReport {
	return &SubmissionReport{FailureMessages: []string{}}
}
