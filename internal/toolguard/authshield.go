package toolguard

import (
	"fmt"
	"regexp"
	"strings"
)

// ShieldedFlags is the configurable set of auth-lookup flag names whose
// values select a local credential and must never be sent to the detector
// (spec §4.6, §9 "the algorithm is general").
var ShieldedFlags = []string{"account", "client"}

// shieldPattern matches --flag=value, --flag value, and the double- and
// single-quoted forms of value, for one flag name.
func shieldPattern(flag string) *regexp.Regexp {
	return regexp.MustCompile(`--` + regexp.QuoteMeta(flag) + `(=|\s+)("([^"]*)"|'([^']*)'|(\S+))`)
}

// Shielded holds a shell command with auth-lookup flag values replaced by
// inert markers, and the originals needed to restore them.
type Shielded struct {
	Command string
	markers map[string]string // marker -> original value
}

// Shield scans command for occurrences of every flag in ShieldedFlags and
// replaces each value with an inert marker __MOLTGUARD_AUTH_<k>__, recording
// the original so Unshield can swap it back after the Sanitizer runs.
func Shield(command string) Shielded {
	markers := make(map[string]string)
	k := 0
	for _, flag := range ShieldedFlags {
		re := shieldPattern(flag)
		command = re.ReplaceAllStringFunc(command, func(match string) string {
			sub := re.FindStringSubmatch(match)
			sep := sub[1]
			value := firstNonEmpty(sub[3], sub[4], sub[5])
			marker := fmt.Sprintf("__MOLTGUARD_AUTH_%d__", k)
			k++
			markers[marker] = value
			quote := quoteCharOf(sub[2])
			return "--" + flag + sep + quote + marker + quote
		})
	}
	return Shielded{Command: command, markers: markers}
}

// Unshield swaps every marker in text back to its original value.
func (s Shielded) Unshield(text string) string {
	for marker, original := range s.markers {
		text = strings.ReplaceAll(text, marker, original)
	}
	return text
}

func quoteCharOf(raw string) string {
	if len(raw) > 0 && (raw[0] == '"' || raw[0] == '\'') {
		return string(raw[0])
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
