// Package toolguard classifies outbound tool invocations and shields
// local-credential-selecting flag values from the detector (spec §4.6).
package toolguard

import (
	"regexp"
	"strings"
)

var (
	bashExternalUtilRE = regexp.MustCompile(`(?i)\b(curl|gog|wget|http|httpie|ssh|scp|sftp|rsync)\b`)
	webToolNameRE       = regexp.MustCompile(`(?i)^web[_\s]?(search|fetch)$`)
)

// IsOutboundTool reports whether a tool invocation named toolName, with the
// given parameters, requires sanitization before the tool runs (spec's
// "outbound" classification).
func IsOutboundTool(toolName string, params map[string]any) bool {
	switch {
	case strings.EqualFold(toolName, "bash"):
		cmd, _ := params["command"].(string)
		return bashExternalUtilRE.MatchString(cmd)
	case webToolNameRE.MatchString(toolName):
		return true
	default:
		return false
	}
}
