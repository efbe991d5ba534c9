package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pin-ingest/internal/model"
)

// streamJSON decodes a JSON array of objects, one record per element. The
// root shape is checked before any element is decoded.
func streamJSON(ctx context.Context, data []byte, onSkip func(int, string)) (<-chan model.RawRecord, <-chan error) {
	recCh := make(chan model.RawRecord, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(recCh)
		defer close(errCh)

		decoder := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
		decoder.UseNumber()

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				errCh <- &EmptyInputError{Format: FormatJSON}
				return
			}
			errCh <- &SchemaError{Format: FormatJSON, Reason: "unreadable root: " + err.Error()}
			return
		}

		delim, ok := tok.(json.Delim)
		if !ok || delim != '[' {
			errCh <- &SchemaError{Format: FormatJSON, Reason: fmt.Sprintf("root must be an array of objects, got %s", describeToken(tok))}
			return
		}

		row := 0
		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
			row++

			var raw json.RawMessage
			if err := decoder.Decode(&raw); err != nil {
				// The decoder cannot resynchronise after a syntax error.
				onSkip(row, err.Error())
				return
			}

			rec, err := decodeObject(raw)
			if err != nil {
				onSkip(row, err.Error())
				continue
			}

			select {
			case recCh <- rec:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}
	}()

	return recCh, errCh
}

// decodeObject converts one JSON object into a record, keeping key order.
func decodeObject(raw json.RawMessage) (rec model.RawRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("json: panic decoding element: %v", r)
		}
	}()

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return rec, eris.Wrap(err, "json: read element")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return rec, eris.Errorf("json: element is %s, not an object", describeToken(tok))
	}

	rec = model.NewRawRecord(8)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return rec, eris.Wrap(err, "json: read key")
		}
		key, _ := keyTok.(string)

		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return rec, eris.Wrapf(err, "json: read value for %q", key)
		}
		rec.Set(key, stringifyJSON(val))
	}
	return rec, nil
}

// stringifyJSON renders a JSON value as the text a spreadsheet cell would hold.
func stringifyJSON(val json.RawMessage) string {
	trimmed := bytes.TrimSpace(val)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
		return string(trimmed)
	case 'n':
		return ""
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err == nil {
			return buf.String()
		}
		return string(trimmed)
	default:
		return string(trimmed) // numbers and booleans keep their literal text
	}
}

func describeToken(tok json.Token) string {
	switch v := tok.(type) {
	case json.Delim:
		if v == '{' {
			return "object"
		}
		return strconv.QuoteRune(rune(v))
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", tok)
	}
}
