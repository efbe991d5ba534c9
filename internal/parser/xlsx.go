package parser

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pin-ingest/internal/model"
)

// streamXLSX reads the first sheet of a workbook; its first non-blank row is
// the header.
func streamXLSX(ctx context.Context, data []byte, onSkip func(int, string)) (<-chan model.RawRecord, <-chan error) {
	recCh := make(chan model.RawRecord, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(recCh)
		defer close(errCh)

		f, err := xlsx.OpenBinary(data)
		if err != nil {
			errCh <- &SchemaError{Format: FormatXLSX, Reason: "unreadable workbook: " + err.Error()}
			return
		}
		if len(f.Sheets) == 0 {
			errCh <- &EmptyInputError{Format: FormatXLSX}
			return
		}
		sheet := f.Sheets[0]

		var header []string
		for i, row := range sheet.Rows {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xlsx: context cancelled")
				return
			}

			cells, err := rowToStrings(row)
			if err != nil {
				if header == nil {
					errCh <- &SchemaError{Format: FormatXLSX, Reason: "unreadable header row: " + err.Error()}
					return
				}
				onSkip(i+1, err.Error())
				continue
			}
			if blankRow(cells) {
				continue
			}
			if header == nil {
				header = uniqueHeader(cells)
				continue
			}

			select {
			case recCh <- zipRow(header, cells):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xlsx: context cancelled")
				return
			}
		}
	}()

	return recCh, errCh
}

// rowToStrings renders each cell as displayed text. Cell formatting code can
// panic on malformed styles; that row is reported as an error instead.
func rowToStrings(row *xlsx.Row) (cells []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("xlsx: malformed row: %v", r)
		}
	}()
	if row == nil {
		return nil, nil
	}
	cells = make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		cells[j] = cell.String()
	}
	return cells, nil
}
