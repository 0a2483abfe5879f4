// Package sanitizer walks arbitrary JSON-shaped values, detects PII in
// string leaves, and replaces it with placeholders allocated through the
// token vault (spec §4.3).
package sanitizer

import (
	"sort"
	"strings"

	"moltguard/internal/pii"
	"moltguard/internal/vault"
)

// Detector is the subset of internal/detector.Detector the Sanitizer needs.
type Detector interface {
	Detect(text string) []pii.Match
}

// Store is the subset of *vault.Vault the Sanitizer needs: idempotent
// placeholder allocation and access to a session's live mapping/counters.
type Store interface {
	Store(sessionID, original string, cat pii.Category) string
	SessionState(sessionID string) *vault.SessionState
}

// Sanitizer redacts PII from JSON-shaped values.
type Sanitizer struct {
	detector Detector
	store    Store
}

// New returns a Sanitizer using detector for entity detection and store for
// placeholder allocation.
func New(detector Detector, store Store) *Sanitizer {
	return &Sanitizer{detector: detector, store: store}
}

// Result is the outcome of one Sanitize call.
type Result struct {
	Sanitized            any
	Mapping              vault.MappingTable
	RedactionCount       int
	RedactionsByCategory map[pii.Category]uint32
}

// Sanitize walks value (the shapes produced by encoding/json: string,
// float64, bool, nil, []any, map[string]any) and returns a redacted copy of
// the same shape plus the session's current mapping table and counters.
// Fresh per-request isolation vs. cross-turn sharing is entirely a function
// of which sessionID the caller passes — the shared gateway session or a
// request-scoped one (spec §4.3 "shared_state").
func (s *Sanitizer) Sanitize(sessionID string, value any) Result {
	state := s.store.SessionState(sessionID)
	sanitized := s.walk(sessionID, value)
	return Result{
		Sanitized:            sanitized,
		Mapping:              state.Mapping(),
		RedactionCount:       mappingLen(state.Mapping()),
		RedactionsByCategory: state.Counters(),
	}
}

func mappingLen(m vault.MappingTable) int {
	n := 0
	m.Iterate(func(string, string) bool {
		n++
		return true
	})
	return n
}

func (s *Sanitizer) walk(sessionID string, value any) any {
	switch v := value.(type) {
	case string:
		return s.sanitizeString(sessionID, v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if pii.StructuralKeys[k] {
				out[k] = val
				continue
			}
			out[k] = s.walk(sessionID, val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = s.walk(sessionID, val)
		}
		return out
	default:
		return v
	}
}

// sanitizeString implements spec §4.3's string transform: detect, dedup by
// original text (first occurrence wins), sort longest-first so a longer
// match is substituted before a shorter one it contains, then for each
// candidate allocate a placeholder only if its original text is still
// literally present in the progressively-substituted working string.
// Skipping the allocation when a match was already consumed by a longer one
// is what keeps the per-category counter gap-free.
func (s *Sanitizer) sanitizeString(sessionID string, text string) string {
	matches := s.detector.Detect(text)
	if len(matches) == 0 {
		return text
	}

	type candidate struct {
		original string
		category pii.Category
	}

	seen := make(map[string]bool, len(matches))
	var candidates []candidate
	for _, m := range matches {
		if seen[m.Text] {
			continue
		}
		seen[m.Text] = true
		candidates = append(candidates, candidate{original: m.Text, category: m.Category})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].original) > len(candidates[j].original)
	})

	working := text
	for _, c := range candidates {
		if !strings.Contains(working, c.original) {
			continue // consumed by a longer match already substituted
		}
		token := s.store.Store(sessionID, c.original, c.category)
		working = strings.ReplaceAll(working, c.original, token)
	}
	return working
}
