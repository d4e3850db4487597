package dataprocessing

import (
	"fmt"
	"strings"
	"time"

	"citypulse/pkg/contracts/domain"
)

// DefaultTimestampLayouts are tried in order when coercing the datetime column.
var DefaultTimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"02-Jan-2006 15:04:05",
	"02-Jan-2006",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
}

// measurementColumns are coerced to numeric during cleaning.
var measurementColumns = []string{domain.ColumnTraffic, domain.ColumnPollution, domain.ColumnRain}

// CleanOptions configures the cleaner.
type CleanOptions struct {
	// MaxFillGap leaves runs of consecutive missing values longer than this
	// untouched; 0 means no limit
	MaxFillGap int

	// DropDuplicates removes repeated rows, keeping the first
	DropDuplicates bool

	// TimestampLayouts overrides DefaultTimestampLayouts
	TimestampLayouts []string
}

// DefaultCleanOptions returns the cleaner defaults.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		MaxFillGap:       0, // 0 means no limit
		DropDuplicates:   false,
		TimestampLayouts: DefaultTimestampLayouts,
	}
}

// Cleaner normalizes types and fills gaps. It never fails: conversion
// problems turn into missing values. A Cleaner is not safe for concurrent use.
type Cleaner struct {
	opts  CleanOptions
	steps []domain.CleaningStep
}

// NewCleaner creates a cleaner.
func NewCleaner(opts CleanOptions) *Cleaner {
	if len(opts.TimestampLayouts) == 0 {
		opts.TimestampLayouts = DefaultTimestampLayouts
	}
	if opts.MaxFillGap < 0 {
		opts.MaxFillGap = 0
	}
	return &Cleaner{opts: opts}
}

// Clean returns a cleaned copy of t and the steps taken. t is not modified.
func (c *Cleaner) Clean(t *Table) (*Table, []domain.CleaningStep) {
	c.steps = nil
	out := t.Clone()

	out = c.aliasTimestamp(out)
	c.coerceDatetime(out)
	c.trimText(out)
	c.coerceMeasurements(out)
	if c.opts.DropDuplicates {
		out = c.dropDuplicates(out)
	}
	c.fill(out)

	return out, c.steps
}

func (c *Cleaner) record(step, column string, affected int, format string, args ...any) {
	c.steps = append(c.steps, domain.CleaningStep{
		Step:     step,
		Column:   column,
		Affected: affected,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (c *Cleaner) aliasTimestamp(t *Table) *Table {
	if HasColumns(t, domain.ColumnDatetime) || !HasColumns(t, domain.ColumnTimestamp) {
		return t
	}
	renamed, err := t.Rename(domain.ColumnTimestamp, domain.ColumnDatetime)
	if err != nil {
		return t
	}
	c.record("alias", domain.ColumnTimestamp, 0, "using %q as %q", domain.ColumnTimestamp, domain.ColumnDatetime)
	return renamed
}

func (c *Cleaner) coerceDatetime(t *Table) {
	col, ok := t.Column(domain.ColumnDatetime)
	if !ok || col.Kind == KindTimestamp {
		return
	}
	failed := 0
	for i, v := range col.Values {
		if v.Missing {
			continue
		}
		ts, ok := ParseTimestamp(strings.TrimSpace(col.Format(i)), c.opts.TimestampLayouts)
		if !ok {
			col.Values[i] = Missing()
			failed++
			continue
		}
		col.Values[i] = Timestamp(ts)
	}
	col.Kind = KindTimestamp
	c.record("coerce_datetime", col.Name, failed, "%d unparseable timestamps set to missing", failed)
}

// ParseTimestamp tries each layout in turn.
func ParseTimestamp(s string, layouts []string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (c *Cleaner) trimText(t *Table) {
	for _, col := range t.Columns() {
		if col.Kind != KindText {
			continue
		}
		changed := 0
		for i, v := range col.Values {
			if v.Missing {
				continue
			}
			trimmed := strings.TrimSpace(v.Text)
			switch {
			case IsMissingToken(trimmed):
				col.Values[i] = Missing()
				changed++
			case trimmed != v.Text:
				col.Values[i] = Text(trimmed)
				changed++
			}
		}
		if changed > 0 {
			c.record("trim", col.Name, changed, "trimmed whitespace in %d values", changed)
		}
	}
}

func (c *Cleaner) coerceMeasurements(t *Table) {
	for _, name := range measurementColumns {
		col, ok := t.Column(name)
		if !ok || col.Kind == KindNumeric {
			continue
		}
		failed := 0
		for i, v := range col.Values {
			if v.Missing {
				continue
			}
			f, ok := ParseNumber(strings.TrimSpace(col.Format(i)))
			if !ok {
				col.Values[i] = Missing()
				failed++
				continue
			}
			col.Values[i] = Number(f)
		}
		col.Kind = KindNumeric
		c.record("coerce_numeric", name, failed, "%d non-numeric values set to missing", failed)
	}
}

func (c *Cleaner) dropDuplicates(t *Table) *Table {
	seen := make(map[string]struct{}, t.NumRows())
	keep := make([]int, 0, t.NumRows())
	for r := 0; r < t.NumRows(); r++ {
		key := rowKey(t, r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, r)
	}
	removed := t.NumRows() - len(keep)
	c.record("drop_duplicates", "", removed, "removed %d duplicate rows", removed)
	if removed == 0 {
		return t
	}
	return t.SelectRows(keep)
}

func rowKey(t *Table, r int) string {
	var b strings.Builder
	for _, col := range t.Columns() {
		if col.Values[r].Missing {
			b.WriteByte(0)
		} else {
			b.WriteString(col.Format(r))
		}
		b.WriteByte(0x1f)
	}
	return b.String()
}

func (c *Cleaner) fill(t *Table) {
	for _, col := range t.Columns() {
		before := col.MissingCount()
		if before == 0 {
			continue
		}
		if before == col.Len() {
			c.record("fill", col.Name, 0, "column entirely missing, left unfilled")
			continue
		}
		filled := FillColumn(col.Values, c.opts.MaxFillGap)
		c.record("fill", col.Name, filled, "filled %d of %d missing values", filled, before)
	}
}

// FillColumn fills missing values in place: forward from the nearest
// preceding value, then backward for a leading run. A run longer than
// maxGap (when maxGap > 0) is left as is. Returns the number filled.
func FillColumn(values []Value, maxGap int) int {
	filled := 0
	n := len(values)
	for i := 0; i < n; {
		if !values[i].Missing {
			i++
			continue
		}
		start := i
		for i < n && values[i].Missing {
			i++
		}
		if maxGap > 0 && i-start > maxGap {
			continue
		}

		var src Value
		switch {
		case start > 0:
			src = values[start-1]
		case i < n:
			src = values[i]
		default:
			continue
		}
		for j := start; j < i; j++ {
			values[j] = src
			filled++
		}
	}
	return filled
}
