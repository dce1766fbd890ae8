package qa

import (
	"regexp"
	"strings"
)

// Navigation chrome and boilerplate that scrapers mistake for titles.
var noiseTitles = map[string]struct{}{
	"home":            {},
	"bids":            {},
	"bids & rfps":     {},
	"rfps":            {},
	"current bids":    {},
	"click here":      {},
	"read more":       {},
	"learn more":      {},
	"view details":    {},
	"details":         {},
	"more info":       {},
	"contact us":      {},
	"subscribe":       {},
	"login":           {},
	"log in":          {},
	"sign up":         {},
	"search":          {},
	"sitemap":         {},
	"faq":             {},
	"archive":         {},
	"archives":        {},
	"n/a":             {},
	"none":            {},
	"test":            {},
	"untitled":        {},
	"notice":          {},
	"public notice":   {},
	"public notices":  {},
	"procurement":     {},
	"purchasing":      {},
	"solicitations":   {},
	"open bids":       {},
	"closed bids":     {},
	"bid results":     {},
	"bid opportunity": {},
}

// blockedLinkFragments mark URLs that lead away from procurement content.
var blockedLinkFragments = []string{
	"/calendar",
	"/jobs",
	"/employment",
	"/careers",
	"/tax",
	"/login",
	"/sign-in",
	"/signin",
	"/faq",
	"/sitemap",
	"/privacy",
	"/accessibility",
	"/news",
	"/events",
	"/agenda",
	"/minutes",
	"mailto:",
	"javascript:",
}

// blockedTextTerms mark anchor text that names site chrome, not a
// solicitation. Kept narrow: "employment" is safe to match anywhere,
// "bids" is not.
var blockedTextTerms = []string{
	"calendar",
	"employment",
	"job opening",
	"agenda",
	"meeting minutes",
	"newsletter",
	"press release",
}

// BlockedLink reports whether a link or its anchor text points at
// navigation chrome rather than a solicitation. Checked before a candidate
// is kept, so blocked pages are never fetched or stored.
func BlockedLink(link, text string) bool {
	l := strings.ToLower(link)
	for _, fragment := range blockedLinkFragments {
		if strings.Contains(l, fragment) {
			return true
		}
	}
	t := strings.ToLower(text)
	for _, term := range blockedTextTerms {
		if strings.Contains(t, term) {
			return true
		}
	}
	return false
}

var numericOnly = regexp.MustCompile(`^[\d\s\-\./#]+$`)

// IsValidTitle reports whether a scraped title names an actual
// opportunity. Bare dates, numbers, and navigation text all fail.
func IsValidTitle(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	if len(t) < 5 {
		return false
	}
	if _, noise := noiseTitles[t]; noise {
		return false
	}
	if numericOnly.MatchString(t) {
		return false
	}
	// A title that is nothing but a date is a scraped table cell.
	if _, isDate := NormalizeDate(t); isDate {
		return false
	}
	return true
}
