package gls

import (
	"strings"
	"time"
)

// Event is one normalized status record. When is "YYYY-MM-DD HH:MM:SS",
// date-only, time-only or empty; TS is epoch milliseconds, 0 when the
// date could not be parsed.
type Event struct {
	Text string
	When string
	TS   int64
}

// Extractor turns raw carrier records into Events using its alias tables.
type Extractor struct {
	aliases Aliases
}

func NewExtractor(a Aliases) *Extractor {
	return &Extractor{aliases: a}
}

func firstString(obj map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// eventLike reports whether x is an object carrying any of the known
// description fields. One matching key is enough.
func (x *Extractor) eventLike(v any) bool {
	obj, ok := v.(map[string]any)
	if !ok {
		return false
	}
	for _, k := range x.aliases.Text {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

// formatLocation renders " (City, Country)" from a nested address object,
// dropping whichever part is absent. Country name wins over country code.
func (x *Extractor) formatLocation(obj map[string]any) string {
	var addr map[string]any
	for _, k := range x.aliases.Address {
		if m, ok := obj[k].(map[string]any); ok {
			addr = m
			break
		}
	}
	if addr == nil {
		return ""
	}

	parts := make([]string, 0, 2)
	if city, ok := firstString(addr, x.aliases.City); ok {
		parts = append(parts, city)
	}
	country, ok := firstString(addr, x.aliases.CountryName)
	if !ok {
		country, _ = firstString(addr, x.aliases.CountryCode)
	}
	if country != "" {
		parts = append(parts, country)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// Normalize converts one raw record into an Event. Missing fields fall
// back to empty values; a bad date yields TS 0, never an error.
func (x *Extractor) Normalize(obj map[string]any) Event {
	text, _ := firstString(obj, x.aliases.Text)
	text = strings.TrimSpace(text) + x.formatLocation(obj)

	d, _ := firstString(obj, x.aliases.Date)
	t, _ := firstString(obj, x.aliases.Time)

	var when string
	switch {
	case d != "" && t != "":
		when = d + " " + t
	case d != "":
		when = d
	case t != "":
		when = t
	}

	var ts int64
	if d != "" && t != "" {
		ts = parseMillis(d + "T" + t)
	} else if d != "" {
		ts = parseMillis(d)
	}

	return Event{Text: text, When: when, TS: ts}
}

var whenLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseMillis(s string) int64 {
	for _, layout := range whenLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UnixMilli()
		}
	}
	return 0
}
