package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pin-ingest/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// streamCSV reads delimited text whose first row is the header.
func streamCSV(ctx context.Context, data []byte, opts Options, onSkip func(int, string)) (<-chan model.RawRecord, <-chan error) {
	recCh := make(chan model.RawRecord, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(recCh)
		defer close(errCh)

		data = bytes.TrimPrefix(data, utf8BOM)

		reader := csv.NewReader(bytes.NewReader(data))
		reader.Comma = opts.Delimiter
		if reader.Comma == 0 {
			reader.Comma = sniffDelimiter(data)
		}
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1 // allow variable fields

		var header []string
		row := 0
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			cells, err := reader.Read()
			if err == io.EOF {
				return
			}
			row++
			if err != nil {
				var parseErr *csv.ParseError
				if !errors.As(err, &parseErr) {
					errCh <- eris.Wrap(err, "csv: read row")
					return
				}
				if header == nil {
					errCh <- &SchemaError{Format: FormatCSV, Reason: "unreadable header row: " + parseErr.Error()}
					return
				}
				onSkip(row, parseErr.Error())
				continue
			}

			if header == nil {
				if blankRow(cells) {
					row--
					continue
				}
				header = uniqueHeader(cells)
				continue
			}
			if blankRow(cells) {
				continue
			}

			select {
			case recCh <- zipRow(header, cells):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return recCh, errCh
}

// sniffDelimiter picks the most frequent candidate separator on the first line.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
