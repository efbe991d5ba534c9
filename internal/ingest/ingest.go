// Package ingest drives one upload through parsing, normalization, geocoding
// and chunked submission.
package ingest

import (
	"context"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/normalize"
	"github.com/sells-group/pin-ingest/internal/parser"
	"github.com/sells-group/pin-ingest/internal/pins"
	"github.com/sells-group/pin-ingest/internal/submit"
	"github.com/sells-group/pin-ingest/pkg/geocode"
)

// Upload is one uploaded file and who uploaded it.
type Upload struct {
	Data     []byte
	Format   parser.Format
	Caller   string
	FileName string
}

// Prepared is an upload turned into drafts, before any network call.
type Prepared struct {
	Drafts      []model.PinDraft
	RowsSkipped int
	RowErrors   []*RowProcessingError
	Warnings    []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNormalizer sets the normalizer. Default: normalize.New().
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(o *Orchestrator) {
		o.normalizer = n
	}
}

// WithGeocoder sets the lazily initialized resolver. Without one, drafts
// that need geocoding keep the unresolved coordinate.
func WithGeocoder(l *geocode.Lazy) Option {
	return func(o *Orchestrator) {
		o.geocoder = l
	}
}

// WithConcurrency sets the ResolveMany limit.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		o.concurrency = n
	}
}

// WithStrictContact makes a malformed email or phone a row error.
func WithStrictContact(strict bool) Option {
	return func(o *Orchestrator) {
		o.strictContact = strict
	}
}

// WithParserOptions sets the options passed to the parser.
func WithParserOptions(opts parser.Options) Option {
	return func(o *Orchestrator) {
		o.parserOpts = opts
	}
}

// Orchestrator runs uploads. It keeps no per-run state, so concurrent runs
// are independent.
type Orchestrator struct {
	normalizer    *normalize.Normalizer
	geocoder      *geocode.Lazy
	submitter     *submit.Submitter
	concurrency   int
	strictContact bool
	parserOpts    parser.Options
}

// New creates an Orchestrator that submits through s.
func New(s *submit.Submitter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		normalizer:    normalize.New(),
		submitter:     s,
		concurrency:   geocode.DefaultConcurrency,
		strictContact: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Prepare parses the upload and builds one draft per admissible record, in
// source order. Parser errors (*parser.EmptyInputError, *parser.SchemaError)
// are returned unchanged.
func (o *Orchestrator) Prepare(ctx context.Context, up Upload) (*Prepared, error) {
	res, err := parser.Parse(ctx, up.Data, up.Format, o.parserOpts)
	if err != nil {
		return nil, err
	}

	p := &Prepared{
		Drafts:      make([]model.PinDraft, 0, len(res.Records)),
		RowsSkipped: res.Skipped,
		Warnings:    res.Warnings,
	}
	for i, rec := range res.Records {
		d, rowErr := o.buildRow(i+1, rec, up)
		if rowErr != nil {
			p.RowErrors = append(p.RowErrors, rowErr)
			continue
		}
		p.Drafts = append(p.Drafts, d)
	}
	return p, nil
}

func (o *Orchestrator) buildRow(row int, rec model.RawRecord, up Upload) (d model.PinDraft, rowErr *RowProcessingError) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("ingest: row panicked",
				zap.Int("row", row),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			rowErr = &RowProcessingError{Row: row, Err: eris.Errorf("panic: %v", r)}
		}
	}()

	nr := o.normalizer.NormalizeRow(rec)
	if o.strictContact {
		if err := normalize.ValidateContact(nr.Contact); err != nil {
			return model.PinDraft{}, &RowProcessingError{Row: row, Err: err}
		}
	}

	return pins.Build(pins.Input{
		Address:    nr.Address,
		Contact:    nr.Contact,
		Caller:     up.Caller,
		SourceFile: up.FileName,
		Row:        row,
		Coordinate: nr.Coordinate,
	}), nil
}

// Geocode resolves every draft that still needs a coordinate and returns
// the located drafts plus the number of lookups that failed. Drafts that
// already have a coordinate are not looked up.
func (o *Orchestrator) Geocode(ctx context.Context, drafts []model.PinDraft) ([]model.PinDraft, int) {
	idx, addrs := pins.Pending(drafts)
	if len(idx) == 0 {
		return drafts, 0
	}

	if o.geocoder == nil {
		zap.L().Warn("ingest: no geocoder configured, drafts stay unresolved", zap.Int("pending", len(idx)))
		return drafts, len(idx)
	}
	r, err := o.geocoder.Get()
	if err != nil {
		zap.L().Error("ingest: geocoder unavailable, drafts stay unresolved",
			zap.Int("pending", len(idx)),
			zap.Error(err),
		)
		return drafts, len(idx)
	}

	coords := r.ResolveMany(ctx, addrs, o.concurrency)
	out := append([]model.PinDraft(nil), drafts...)
	failures := 0
	for j, i := range idx {
		if coords[j].IsZero() {
			failures++
			continue
		}
		out[i] = pins.WithCoordinate(out[i], coords[j])
	}
	return out, failures
}

// Run ingests one upload end to end. A parser-level fatal error is returned
// before any network call and with no report; every other problem ends up
// in the report.
func (o *Orchestrator) Run(ctx context.Context, up Upload, onProgress func(percent int)) (*model.SubmissionReport, error) {
	log := zap.L().With(
		zap.String("run_id", uuid.NewString()),
		zap.String("file", up.FileName),
		zap.String("format", string(up.Format)),
	)

	p, err := o.Prepare(ctx, up)
	if err != nil {
		log.Warn("ingest: upload rejected", zap.Error(err))
		return nil, err
	}
	log.Info("ingest: upload parsed",
		zap.Int("drafts", len(p.Drafts)),
		zap.Int("rows_skipped", p.RowsSkipped),
		zap.Int("row_errors", len(p.RowErrors)),
	)

	drafts, geoFailures := o.Geocode(ctx, p.Drafts)

	report := o.submitter.Submit(ctx, drafts, onProgress)
	report.RowsSkipped = p.RowsSkipped + len(p.RowErrors)
	report.GeocodeFailures = geoFailures
	for _, re := range p.RowErrors {
		report.RowErrors = append(report.RowErrors, re.Error())
	}

	log.Info("ingest: run finished",
		zap.Int("attempted", report.TotalAttempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("geocode_failures", report.GeocodeFailures),
	)
	return report, nil
}
