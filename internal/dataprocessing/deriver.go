package dataprocessing

import (
	"citypulse/pkg/contracts/domain"
)

// DeriveCalendarFeatures adds hour, day and month columns computed from the
// datetime column. It returns t unchanged and false when there is no parsed
// datetime column. Existing columns with those names are replaced.
func DeriveCalendarFeatures(t *Table) (*Table, bool) {
	src, ok := t.Column(domain.ColumnDatetime)
	if !ok || src.Kind != KindTimestamp {
		return t, false
	}

	n := src.Len()
	hours := make([]Value, n)
	days := make([]Value, n)
	months := make([]Value, n)
	for i, v := range src.Values {
		if v.Missing {
			hours[i], days[i], months[i] = Missing(), Missing(), Missing()
			continue
		}
		hours[i] = Number(float64(v.Time.Hour()))
		days[i] = Text(v.Time.Weekday().String())
		months[i] = Number(float64(v.Time.Month()))
	}

	out := t
	for _, col := range []*Column{
		NewColumn(domain.ColumnHour, KindNumeric, hours),
		NewColumn(domain.ColumnDay, KindText, days),
		NewColumn(domain.ColumnMonth, KindNumeric, months),
	} {
		next, err := out.WithColumn(col)
		if err != nil {
			return t, false
		}
		out = next
	}
	return out, true
}
