// Package parser turns uploaded CSV, JSON, and XLSX files into ordered raw records.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pin-ingest/internal/model"
)

// Format is the declared shape of an uploaded file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a format tag or file extension to a Format.
func ParseFormat(tag string) (Format, error) {
	t := strings.ToLower(strings.TrimSpace(tag))
	t = strings.TrimPrefix(t, ".")
	switch t {
	case "csv", "delimited", "text/csv", "txt", "tsv":
		return FormatCSV, nil
	case "json", "structured", "application/json":
		return FormatJSON, nil
	case "xlsx", "spreadsheet", "excel":
		return FormatXLSX, nil
	case "xls":
		return "", eris.New("parser: legacy .xls workbooks are not supported, save as .xlsx")
	default:
		return "", eris.Errorf("parser: unknown format %q", tag)
	}
}

// FormatFromFileName guesses the format from a file name's extension.
func FormatFromFileName(name string) (Format, error) {
	return ParseFormat(filepath.Ext(name))
}

// Options tunes parsing. The zero value is usable.
type Options struct {
	// Delimiter for delimited text. Zero means ',' (or tab for .tsv names).
	Delimiter rune
}

// Result is a fully drained parse.
type Result struct {
	Records  []model.RawRecord
	Skipped  int
	Warnings []string
}

// Stream parses data lazily. Records arrive in source order on the first
// channel; at most one error arrives on the second. Both channels close when
// parsing finishes. Restarting means calling Stream again.
//
// Skipped rows are reported on the error channel only when the whole input is
// unusable; per-row problems go to the onSkip callback if one is set.
func Stream(ctx context.Context, data []byte, format Format, opts Options, onSkip func(row int, reason string)) (<-chan model.RawRecord, <-chan error) {
	if onSkip == nil {
		onSkip = func(int, string) {}
	}
	switch format {
	case FormatCSV:
		return streamCSV(ctx, data, opts, onSkip)
	case FormatJSON:
		return streamJSON(ctx, data, onSkip)
	case FormatXLSX:
		return streamXLSX(ctx, data, onSkip)
	default:
		recCh := make(chan model.RawRecord)
		errCh := make(chan error, 1)
		close(recCh)
		errCh <- eris.Errorf("parser: unknown format %q", format)
		close(errCh)
		return recCh, errCh
	}
}

// Parse drains Stream into a Result. EmptyInputError and SchemaError are
// returned as-is so callers can match them with errors.As.
func Parse(ctx context.Context, data []byte, format Format, opts Options) (*Result, error) {
	res := &Result{}
	recCh, errCh := Stream(ctx, data, format, opts, func(row int, reason string) {
		res.Skipped++
		res.Warnings = append(res.Warnings, fmt.Sprintf("row %d skipped: %s", row, reason))
		zap.L().Debug("parser: row skipped",
			zap.String("format", string(format)),
			zap.Int("row", row),
			zap.String("reason", reason),
		)
	})

	for rec := range recCh {
		res.Records = append(res.Records, rec)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	if len(res.Records) == 0 && res.Skipped == 0 {
		return nil, &EmptyInputError{Format: format}
	}
	return res, nil
}

// zipRow pairs a data row with the header. Missing trailing cells become "".
// Extra cells beyond the header are dropped.
func zipRow(header []string, cells []string) model.RawRecord {
	rec := model.NewRawRecord(len(header))
	for i, key := range header {
		v := ""
		if i < len(cells) {
			v = cells[i]
		}
		rec.Set(key, v)
	}
	return rec
}

// uniqueHeader trims header cells and makes repeated or blank names unique so
// that record keys stay unique. A repeat takes the first free "_N" suffix,
// skipping names already used by any column.
func uniqueHeader(cells []string) []string {
	out := make([]string, len(cells))
	taken := make(map[string]bool, len(cells))
	for i, c := range cells {
		base := strings.TrimSpace(c)
		if base == "" {
			base = fmt.Sprintf("column_%d", i+1)
		}
		name := base
		for n := 1; taken[name]; {
			n++
			name = fmt.Sprintf("%s_%d", base, n)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

// blankRow reports whether every cell is empty or whitespace.
func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
