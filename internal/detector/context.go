package detector

import "strings"

// windowHasKeyword reports whether any of keywords appears, case-insensitively,
// within radius characters of the byte offset pos in text.
func windowHasKeyword(text string, pos, radius int, keywords []string) bool {
	lo := pos - radius
	if lo < 0 {
		lo = 0
	}
	hi := pos + radius
	if hi > len(text) {
		hi = len(text)
	}
	window := strings.ToLower(text[lo:hi])
	for _, kw := range keywords {
		if strings.Contains(window, kw) {
			return true
		}
	}
	return false
}

// overlaps reports whether two half-open byte ranges [aStart,aEnd) and
// [bStart,bEnd) share any byte.
func overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// overlapsAny reports whether [start,end) overlaps any existing match span.
func overlapsAny(start, end int, existing []span) bool {
	for _, s := range existing {
		if overlaps(start, end, s.start, s.end) {
			return true
		}
	}
	return false
}

// span is a lightweight byte range used internally for overlap bookkeeping,
// distinct from pii.Match which also carries a category and text.
type span struct {
	start, end int
}
