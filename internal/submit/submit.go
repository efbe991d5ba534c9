// Package submit sends pin drafts to a bulk-create sink in sequential,
// throttled chunks and accounts for every draft in a SubmissionReport.
package submit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/resilience"
)

// Defaults for chunking and throttling.
const (
	DefaultChunkSize = 50
	DefaultDelay     = 700 * time.Millisecond
)

// BulkResult is a sink's answer for one chunk. Created counts persisted
// drafts; Errors holds the per-item messages of a partial failure and
// FailedIDs, when the sink can tell, the IDs of the drafts that failed.
type BulkResult struct {
	Created   int
	Errors    []string
	FailedIDs []string
}

// BulkCreator persists one chunk of drafts in a single request. A non-nil
// error means the whole chunk failed.
type BulkCreator interface {
	BulkCreate(ctx context.Context, drafts []model.PinDraft) (BulkResult, error)
}

// DeadLetterSink stores failed drafts for a later replay run.
type DeadLetterSink interface {
	SaveDeadLetter(ctx context.Context, e resilience.DLQEntry) error
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithChunkSize sets the number of drafts per request. Non-positive values
// keep the default.
func WithChunkSize(n int) Option {
	return func(s *Submitter) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithDelay sets the pause between chunks. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(s *Submitter) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithSleep replaces the inter-chunk sleep (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration)) Option {
	return func(s *Submitter) {
		s.sleep = fn
	}
}

// WithDeadLetters records failed drafts in dl, tagged with the sink name.
func WithDeadLetters(dl DeadLetterSink, sinkName string) Option {
	return func(s *Submitter) {
		s.deadLetters = dl
		s.sinkName = sinkName
	}
}

// Submitter runs chunked submissions against one sink. It holds no
// per-run state and may be reused across runs.
type Submitter struct {
	sink        BulkCreator
	chunkSize   int
	delay       time.Duration
	sleep       func(ctx context.Context, d time.Duration)
	deadLetters DeadLetterSink
	sinkName    string
}

// New creates a Submitter for sink.
func New(sink BulkCreator, opts ...Option) *Submitter {
	s := &Submitter{
		sink:      sink,
		chunkSize: DefaultChunkSize,
		delay:     DefaultDelay,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChunkSize returns the configured chunk size.
func (s *Submitter) ChunkSize() int { return s.chunkSize }

// Submit sends drafts in order, one chunk at a time, and returns the
// aggregate report. Every chunk is attempted exactly once. onProgress, if
// set, receives the rounded percentage of drafts processed after each chunk;
// values never decrease and 100 is reported once, after the last chunk.
func (s *Submitter) Submit(ctx context.Context, drafts []model.PinDraft, onProgress func(percent int)) *model.SubmissionReport {
	report := model.NewSubmissionReport()
	total := len(drafts)
	if total == 0 {
		return report
	}

	log := zap.L().With(zap.Int("drafts", total), zap.Int("chunk_size", s.chunkSize))
	chunks := Chunk(drafts, s.chunkSize)
	processed := 0

	for i, chunk := range chunks {
		if i > 0 && s.delay > 0 {
			s.sleep(ctx, s.delay)
		}

		first := processed + 1
		s.submitChunk(ctx, log, i+1, first, chunk, report)
		processed += len(chunk)

		if onProgress != nil {
			onProgress(progress(processed, total, i == len(chunks)-1))
		}
	}

	log.Info("submit: run complete",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (s *Submitter) submitChunk(ctx context.Context, log *zap.Logger, n, first int, chunk []model.PinDraft, report *model.SubmissionReport) {
	report.TotalAttempted += len(chunk)
	label := fmt.Sprintf("chunk %d (drafts %d-%d)", n, first, first+len(chunk)-1)

	res, err := s.sink.BulkCreate(ctx, chunk)
	if err != nil {
		report.Failed += len(chunk)
		report.FailureMessages = append(report.FailureMessages, fmt.Sprintf("%s: %v", label, err))
		log.Warn("submit: chunk failed", zap.Int("chunk", n), zap.Error(err))
		s.deadLetter(ctx, chunk, err)
		return
	}

	created := min(max(res.Created, 0), len(chunk))
	report.Succeeded += created
	failed := len(chunk) - created
	if failed == 0 {
		return
	}

	report.Failed += failed
	msg := fmt.Sprintf("%s: %d of %d created", label, created, len(chunk))
	if len(res.Errors) > 0 {
		msg += ": " + strings.Join(res.Errors, "; ")
	}
	report.FailureMessages = append(report.FailureMessages, msg)
	log.Warn("submit: chunk partially failed",
		zap.Int("chunk", n),
		zap.Int("created", created),
		zap.Int("failed", failed),
	)

	cause := eris.Errorf("partial failure: %s", strings.Join(res.Errors, "; "))
	if len(res.FailedIDs) == 0 {
		// The sink did not say which drafts failed, so the whole chunk is kept.
		// A replay resends drafts that were created, so the receiving API has
		// to treat draft IDs as idempotency keys.
		s.deadLetter(ctx, chunk, eris.Wrap(cause, "failed drafts not identified"))
		return
	}
	s.deadLetter(ctx, pick(chunk, res.FailedIDs), cause)
}

func (s *Submitter) deadLetter(ctx context.Context, drafts []model.PinDraft, cause error) {
	if s.deadLetters == nil || len(drafts) == 0 {
		return
	}
	entry := resilience.NewDLQEntry(s.sinkName, drafts, cause)
	if err := s.deadLetters.SaveDeadLetter(context.WithoutCancel(ctx), entry); err != nil {
		zap.L().Error("submit: save dead letter", zap.String("id", entry.ID), zap.Error(err))
	}
}

// Chunk splits drafts into contiguous slices of at most size elements.
func Chunk(drafts []model.PinDraft, size int) [][]model.PinDraft {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]model.PinDraft, 0, (len(drafts)+size-1)/size)
	for start := 0; start < len(drafts); start += size {
		chunks = append(chunks, drafts[start:min(start+size, len(drafts))])
	}
	return chunks
}

// progress rounds processed/total to a percentage. Only the last chunk may
// report 100.
func progress(processed, total int, last bool) int {
	if last {
		return 100
	}
	return min(int(math.Round(float64(processed)/float64(total)*100)), 99)
}

func pick(chunk []model.PinDraft, ids []string) []model.PinDraft {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.PinDraft
	for _, d := range chunk {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
