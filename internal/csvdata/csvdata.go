// Package csvdata turns delimited text into the records a batch renders.
package csvdata

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"cardpress/internal/render"
)

var (
	ErrBadDelimiter = errors.New("csvdata: invalid delimiter")
	ErrTooManyRows  = errors.New("csvdata: too many rows")
)

type Options struct {
	// Delimiter defaults to ','.
	Delimiter rune
	// HasHeader treats the first non-blank row as column names. Without a
	// header, columns are named "Column 1".."Column N" after the first row.
	HasHeader bool
	// MaxRows limits data rows; 0 means no limit.
	MaxRows int
}

func DefaultOptions() Options {
	return Options{Delimiter: ',', HasHeader: true}
}

// Table is parsed CSV. Rows may be ragged; Validate reports it.
type Table struct {
	Headers []string
	Rows    [][]string
}

var bom = []byte{0xEF, 0xBB, 0xBF}

// Parse reads all of r. Quoted fields may contain the delimiter, newlines and
// "" escapes. Lines that are empty or only whitespace are skipped.
func Parse(r io.Reader, opt Options) (*Table, error) {
	if opt.Delimiter == 0 {
		opt.Delimiter = ','
	}
	if opt.Delimiter == '"' || opt.Delimiter == '\r' || opt.Delimiter == '\n' ||
		opt.Delimiter == utf8.RuneError {
		return nil, fmt.Errorf("%w: %q", ErrBadDelimiter, opt.Delimiter)
	}

	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, bom) {
		_, _ = br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	cr.Comma = opt.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	t := &Table{}
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvdata: %w", err)
		}
		if blank(rec) {
			continue
		}
		if first {
			first = false
			if opt.HasHeader {
				t.Headers = make([]string, len(rec))
				for i, h := range rec {
					t.Headers[i] = strings.TrimSpace(h)
				}
				continue
			}
			t.Headers = make([]string, len(rec))
			for i := range rec {
				t.Headers[i] = fmt.Sprintf("Column %d", i+1)
			}
		}
		if opt.MaxRows > 0 && len(t.Rows) >= opt.MaxRows {
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, opt.MaxRows)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// ParseDelimiter accepts a single character, or `\t` and "tab" for a tab.
// The empty string selects ','.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%w: must be a single character, got %q", ErrBadDelimiter, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(s string, opt Options) (*Table, error) {
	return Parse(strings.NewReader(s), opt)
}

func blank(rec []string) bool {
	return len(rec) == 1 && strings.TrimSpace(rec[0]) == ""
}

// Records maps every row onto the headers. Missing cells become "" and
// cells beyond the last header are dropped.
func (t *Table) Records() []render.Record {
	out := make([]render.Record, len(t.Rows))
	for i, row := range t.Rows {
		rec := make(render.Record, len(t.Headers))
		for j, h := range t.Headers {
			if j < len(row) {
				rec[h] = row[j]
			} else {
				rec[h] = ""
			}
		}
		out[i] = rec
	}
	return out
}

// Validate lists structural problems. An empty result means the table is
// usable as-is.
func (t *Table) Validate() []string {
	if len(t.Headers) == 0 {
		return []string{"no header row"}
	}

	var problems []string
	seen := make(map[string]bool, len(t.Headers))
	for i, h := range t.Headers {
		switch {
		case h == "":
			problems = append(problems, fmt.Sprintf("column %d has an empty header", i+1))
		case seen[h]:
			problems = append(problems, fmt.Sprintf("duplicate header %q", h))
		}
		seen[h] = true
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Headers) {
			problems = append(problems, fmt.Sprintf("row %d has %d fields, expected %d", i+1, len(row), len(t.Headers)))
		}
	}
	return problems
}

// MissingFields returns the placeholders used by text elements or the
// filename template that no column provides, in first-use order.
func (t *Table) MissingFields(elements []render.Element, filenameTemplate string) []string {
	have := make(map[string]bool, len(t.Headers))
	for _, h := range t.Headers {
		have[h] = true
	}

	var missing []string
	seen := make(map[string]bool)
	check := func(text string) {
		for _, name := range render.Placeholders(text) {
			if !have[name] && !seen[name] {
				seen[name] = true
				missing = append(missing, name)
			}
		}
	}
	for _, el := range elements {
		if te, ok := el.(*render.TextElement); ok {
			check(te.Text)
		}
	}
	check(filenameTemplate)
	return missing
}
