// Package restorer reverses placeholders in strings, JSON-shaped values, and
// SSE lines using a session's mapping table (spec §4.4).
package restorer

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"moltguard/internal/pii"
	"moltguard/internal/vault"
)

// Restorer reverses Sanitizer substitutions.
type Restorer struct {
	log warner
}

// warner receives a structured warning when a fabricated placeholder (one
// with no mapping entry) passes through unchanged.
type warner interface {
	Warnf(action, format string, args ...any)
}

// New returns a Restorer that logs fabricated-placeholder warnings via log.
func New(log warner) *Restorer {
	return &Restorer{log: log}
}

// Restore walks value, restoring every string leaf via the three-pass
// algorithm. Object/array recursion mirrors the Sanitizer's traversal.
func (r *Restorer) Restore(value any, mapping vault.MappingTable) any {
	switch v := value.(type) {
	case string:
		return r.restoreString(v, mapping)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = r.Restore(val, mapping)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = r.Restore(val, mapping)
		}
		return out
	default:
		return v
	}
}

// restoreString applies the canonical, bracket-stripped, and
// fabricated-placeholder passes, in order.
func (r *Restorer) restoreString(text string, mapping vault.MappingTable) string {
	type entry struct {
		token    string
		original string
	}
	var entries []entry
	mapping.Iterate(func(token, original string) bool {
		entries = append(entries, entry{token, original})
		return true
	})
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].token) > len(entries[j].token)
	})

	out := text
	for _, e := range entries {
		out = strings.ReplaceAll(out, e.token, e.original)
	}

	for _, e := range entries {
		bare := strings.TrimSuffix(strings.TrimPrefix(e.token, "["), "]")
		out = replaceWord(out, bare, e.original)
	}

	out = passThroughFabricated(out, mapping, r.log)

	return out
}

var wordCharRE = regexp.MustCompile(`\w`)

// replaceWord replaces every whole-word occurrence of word in s with
// replacement, bounded by non-word characters on both sides.
func replaceWord(s, word, replacement string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.ReplaceAllLiteralString(s, replacement)
}

// fabricatedRE matches the bracketed-or-bare placeholder shape for any known
// category, used by the pass-through pass to find residual placeholder-like
// tokens after the first two passes have run.
var fabricatedRE = buildFabricatedRE()

func buildFabricatedRE() *regexp.Regexp {
	cats := make([]string, len(pii.AllCategories))
	for i, c := range pii.AllCategories {
		cats[i] = string(c)
	}
	return regexp.MustCompile(`\[?(` + strings.Join(cats, "|") + `)_(\d+)\]?`)
}

// passThroughFabricated implements the third pass: any placeholder-shaped
// token for a known category that survives the first two passes either
// matches something in mapping (a guard against double-processing — left
// untouched) or has no mapping entry, in which case it is passed through
// unchanged and a warning is logged. No natural-language fallback is ever
// substituted.
func passThroughFabricated(text string, mapping vault.MappingTable, log warner) string {
	locs := fabricatedRE.FindAllStringIndex(text, -1)
	if locs == nil {
		return text
	}
	for _, loc := range locs {
		token := text[loc[0]:loc[1]]
		canonical := token
		if !strings.HasPrefix(canonical, "[") {
			canonical = "[" + canonical + "]"
		}
		if _, ok := mapping.Get(canonical); ok {
			continue
		}
		if log != nil {
			log.Warnf("restore", "fabricated placeholder with no mapping entry, passing through unchanged")
		}
	}
	return text
}

// RestoreSSELine restores one Server-Sent-Events line: strips the "data: "
// prefix, preserves the "[DONE]" sentinel verbatim, JSON-decodes the
// remainder when possible and restores recursively, else falls back to
// plain string restoration, then re-emits "data: <restored>\n".
//
// Canonical and bracket-stripped substitution are not safe on arbitrary SSE
// fragments because a placeholder may split across chunks; callers must only
// use this on sessions with no mapping, or on upstream responses that have
// already been downgraded to non-streaming and re-encoded (spec §4.4, §4.5).
func (r *Restorer) RestoreSSELine(line string, mapping vault.MappingTable) string {
	const prefix = "data: "
	if !strings.HasPrefix(line, prefix) {
		return line
	}
	payload := strings.TrimPrefix(line, prefix)
	payload = strings.TrimRight(payload, "\r\n")

	if payload == "[DONE]" {
		return "data: [DONE]\n"
	}

	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
		restored := r.Restore(decoded, mapping)
		encoded, err := json.Marshal(restored)
		if err == nil {
			return "data: " + string(encoded) + "\n"
		}
	}

	return "data: " + r.restoreString(payload, mapping) + "\n"
}
