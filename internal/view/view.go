// Package view holds the client-side derived state shared by the
// feature screens: substring search, sorting, and display formatting.
package view

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/costdesk/internal/validate"
)

// Search returns the items for which any of fields contains query,
// ignoring case. An empty query returns items unchanged.
func Search[T any](items []T, query string, fields func(T) []string) []T {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}

	var out []T
	for _, item := range items {
		for _, f := range fields(item) {
			if strings.Contains(strings.ToLower(f), q) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

// Sort returns a sorted copy of items. less orders ascending; desc
// reverses it. Equal elements keep their original order.
func Sort[T any](items []T, less func(a, b T) bool, desc bool) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

// Remove returns items without the element whose id matches.
func Remove[T any](items []T, id string, idOf func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if idOf(item) != id {
			out = append(out, item)
		}
	}
	return out
}

// Replace swaps the element with the same id as item, or prepends item
// when none matches.
func Replace[T any](items []T, item T, idOf func(T) string) []T {
	id := idOf(item)
	out := make([]T, len(items))
	copy(out, items)
	for i := range out {
		if idOf(out[i]) == id {
			out[i] = item
			return out
		}
	}
	return append([]T{item}, out...)
}

// SortState tracks the active sort field and direction of a list.
type SortState struct {
	Fields []string
	Index  int
	Desc   bool
}

// Field returns the active sort field name.
func (s SortState) Field() string {
	if len(s.Fields) == 0 {
		return ""
	}
	return s.Fields[s.Index%len(s.Fields)]
}

// Next moves to the next sort field, ascending.
func (s SortState) Next() SortState {
	if len(s.Fields) > 0 {
		s.Index = (s.Index + 1) % len(s.Fields)
	}
	s.Desc = false
	return s
}

// Toggle flips the sort direction.
func (s SortState) Toggle() SortState {
	s.Desc = !s.Desc
	return s
}

// Label renders the state for a status line, e.g. "date ↓".
func (s SortState) Label() string {
	arrow := "↑"
	if s.Desc {
		arrow = "↓"
	}
	return s.Field() + " " + arrow
}

// Amount formats v with thousands separators and two decimals.
func Amount(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// Date renders a YYYY-MM-DD string as "02 Jan 2006", passing through
// values it cannot parse.
func Date(s string) string {
	t, err := time.Parse(validate.DateLayout, s)
	if err != nil {
		return s
	}
	return t.Format("02 Jan 2006")
}

// Timestamp renders t in local time, or "-" when unset.
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("02 Jan 2006 15:04")
}

// Ago renders how long before now t was, coarsely.
func Ago(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d.Hours())) + "h ago"
	default:
		return strconv.Itoa(int(d.Hours()/24)) + "d ago"
	}
}

// Truncate shortens s to at most n runes, marking the cut with "…".
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
