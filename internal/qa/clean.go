// Package qa audits stored opportunities after a crawl: misattributed
// records, expired deadlines, scraped noise posing as titles, and untagged
// work all get cleaned out so the table stays something a contractor can
// act on.
package qa

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.AmericanEnglish)

// Words kept lowercase mid-title.
var minorWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "at": {}, "by": {}, "for": {},
	"in": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "with": {},
}

// CleanText collapses whitespace and title-cases a scraped string. Short
// connective words stay lowercase except at the start.
func CleanText(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		lower := strings.ToLower(w)
		if _, minor := minorWords[lower]; minor && i > 0 {
			words[i] = lower
			continue
		}
		if w == strings.ToUpper(w) && len(w) > 1 && isAlpha(w) && len(w) <= 4 {
			continue // keep acronyms like HVAC, RFP, DOT
		}
		words[i] = titleCaser.String(lower)
	}
	return strings.Join(words, " ")
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || (r > 'Z' && r < 'a') || r > 'z' {
			return false
		}
	}
	return true
}

// Accepted deadline formats, most common first. Dates arrive in every
// style a county clerk has ever typed.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"02-Jan-2006",
	"2006-01-02T15:04:05Z07:00",
	"01/02/06",
}

// Leading labels stripped before parsing.
var datePrefixes = []string{
	"due:", "due date:", "deadline:", "closes:", "closing:", "due by",
}

// NormalizeDate parses a free-form deadline string. False means the string
// holds no recognizable date, a common and unremarkable outcome.
func NormalizeDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, prefix := range datePrefixes {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	// Drop a trailing time component like "2:00 PM" after a comma or "at".
	if idx := strings.Index(strings.ToLower(s), " at "); idx > 0 {
		s = strings.TrimSpace(s[:idx])
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
