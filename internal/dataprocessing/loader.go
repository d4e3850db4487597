package dataprocessing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Loader failure causes, wrapped by ParseError.
var (
	ErrEmptyInput         = errors.New("empty input")
	ErrUnreadableEncoding = errors.New("unreadable encoding")
	ErrMalformedCSV       = errors.New("malformed CSV")
	ErrInputTooLarge      = errors.New("input exceeds size limit")
)

// ParseError reports an upload that cannot be turned into a table.
// It is the only fatal error of the pipeline.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("parse: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is or wraps a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// LoadOptions configures the loader.
type LoadOptions struct {
	// Source names the upload in errors and logs
	Source string

	// MaxBytes rejects larger inputs; 0 means no limit
	MaxBytes int64

	// Delimiter defaults to a comma
	Delimiter rune
}

// missingTokens are the cell spellings read as missing values.
var missingTokens = map[string]struct{}{
	"":      {},
	"NA":    {},
	"N/A":   {},
	"n/a":   {},
	"#N/A":  {},
	"NaN":   {},
	"nan":   {},
	"null":  {},
	"NULL":  {},
	"None":  {},
	"<nil>": {},
}

// IsMissingToken reports whether s (already trimmed) spells a missing value.
func IsMissingToken(s string) bool {
	_, ok := missingTokens[s]
	return ok
}

// Load parses CSV bytes into a Table. The first row is the header. A column
// whose non-missing cells all parse as numbers is numeric, otherwise text.
func Load(r io.Reader, opts LoadOptions) (*Table, error) {
	raw, err := readLimited(r, opts.MaxBytes)
	if err != nil {
		return nil, &ParseError{Source: opts.Source, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ParseError{Source: opts.Source, Err: ErrEmptyInput}
	}

	text, err := decodeText(raw)
	if err != nil {
		return nil, &ParseError{Source: opts.Source, Err: err}
	}

	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = ','
	}

	df := readFrame(text, delimiter, true)
	var columns []*Column
	if df.Err != nil {
		// gota refuses a header without data rows
		header, ok := headerOnly(text, delimiter)
		if !ok {
			return nil, &ParseError{Source: opts.Source, Err: fmt.Errorf("%w: %v", ErrMalformedCSV, df.Err)}
		}
		for _, name := range header {
			columns = append(columns, inferColumn(name, nil))
		}
	} else {
		columns = make([]*Column, 0, df.Ncol())
		for _, name := range df.Names() {
			columns = append(columns, inferColumn(strings.TrimSpace(name), df.Col(name).Records()))
		}
	}

	table, err := NewTable(columns...)
	if err != nil {
		return nil, &ParseError{Source: opts.Source, Err: fmt.Errorf("%w: %v", ErrMalformedCSV, err)}
	}
	return table, nil
}

func readFrame(text []byte, delimiter rune, hasHeader bool) dataframe.DataFrame {
	return dataframe.ReadCSV(bytes.NewReader(text),
		dataframe.HasHeader(hasHeader),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithDelimiter(delimiter),
	)
}

// headerOnly returns the column names when text holds exactly one record.
func headerOnly(text []byte, delimiter rune) ([]string, bool) {
	df := readFrame(text, delimiter, false)
	if df.Err != nil || df.Nrow() != 1 {
		return nil, false
	}
	names := make([]string, 0, df.Ncol())
	for _, col := range df.Names() {
		names = append(names, strings.TrimSpace(df.Col(col).Records()[0]))
	}
	return names, true
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	raw, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, ErrInputTooLarge
	}
	return raw, nil
}

// decodeText strips a UTF-8 BOM, transcodes UTF-16 with BOM, and rejects
// anything that does not decode cleanly.
func decodeText(raw []byte) ([]byte, error) {
	// the decoders substitute U+FFFD for bad bytes, so UTF-8 is checked up front
	if !hasUTF16BOM(raw) && !utf8.Valid(raw) {
		return nil, ErrUnreadableEncoding
	}
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	text, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableEncoding, err)
	}
	if !utf8.Valid(text) || bytes.IndexByte(text, 0) >= 0 {
		return nil, ErrUnreadableEncoding
	}
	return text, nil
}

func hasUTF16BOM(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte{0xFF, 0xFE}) || bytes.HasPrefix(raw, []byte{0xFE, 0xFF})
}

// ParseNumber parses a finite float. Infinities and NaN are rejected.
func ParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func inferColumn(name string, records []string) *Column {
	values := make([]Value, len(records))
	numeric := true
	for i, cell := range records {
		trimmed := strings.TrimSpace(cell)
		if IsMissingToken(trimmed) {
			values[i] = Missing()
			continue
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil && math.IsNaN(f) {
			values[i] = Missing()
			continue
		}
		values[i] = Text(cell)
		if numeric {
			if _, ok := ParseNumber(trimmed); !ok {
				numeric = false
			}
		}
	}
	if !numeric {
		return NewColumn(name, KindText, values)
	}
	for i, v := range values {
		if v.Missing {
			continue
		}
		f, _ := ParseNumber(strings.TrimSpace(v.Text))
		values[i] = Number(f)
	}
	return NewColumn(name, KindNumeric, values)
}
