package resilience

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/pin-ingest/internal/model"
)

// Error types stored on dead letters.
const (
	ErrorTransient = "transient"
	ErrorPermanent = "permanent"
)

// DefaultMaxReplays bounds how often a dead letter may be replayed.
const DefaultMaxReplays = 3

// DLQEntry is a chunk of drafts that a sink rejected. Replaying an entry
// submits its drafts again as a fresh run.
type DLQEntry struct {
	ID           string           `json:"id"`
	Sink         string           `json:"sink"`
	Drafts       []model.PinDraft `json:"drafts"`
	Error        string           `json:"error"`
	ErrorType    string           `json:"error_type"`
	RetryCount   int              `json:"retry_count"`
	MaxRetries   int              `json:"max_retries"`
	CreatedAt    time.Time        `json:"created_at"`
	LastFailedAt time.Time        `json:"last_failed_at"`
}

// DLQFilter narrows a dead-letter listing.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "" for all
	Limit     int    `json:"limit,omitempty"`
}

// NewDLQEntry records drafts that failed on sink with err.
func NewDLQEntry(sink string, drafts []model.PinDraft, err error) DLQEntry {
	now := time.Now().UTC()
	e := DLQEntry{
		ID:           uuid.NewString(),
		Sink:         sink,
		Drafts:       append([]model.PinDraft(nil), drafts...),
		ErrorType:    ClassifyError(err),
		MaxRetries:   DefaultMaxReplays,
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// CanRetry reports whether the entry may be replayed again.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError returns ErrorTransient or ErrorPermanent.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTransient
	}
	return ErrorPermanent
}
