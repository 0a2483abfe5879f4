package toolguard

import "testing"

func TestIsOutboundTool_BashWithCurl(t *testing.T) {
	if !IsOutboundTool("Bash", map[string]any{"command": "curl https://example.com"}) {
		t.Error("expected curl command to be outbound")
	}
}

func TestIsOutboundTool_BashWithoutExternalUtil(t *testing.T) {
	if IsOutboundTool("Bash", map[string]any{"command": "ls -la"}) {
		t.Error("expected plain ls to not be outbound")
	}
}

func TestIsOutboundTool_WebSearch(t *testing.T) {
	if !IsOutboundTool("WebSearch", nil) {
		t.Error("expected WebSearch to be outbound")
	}
	if !IsOutboundTool("web_fetch", nil) {
		t.Error("expected web_fetch to be outbound")
	}
}

func TestIsOutboundTool_UnrelatedTool(t *testing.T) {
	if IsOutboundTool("ReadFile", map[string]any{"path": "/tmp/x"}) {
		t.Error("expected ReadFile to not be outbound")
	}
}

func TestShield_RoundTrip(t *testing.T) {
	cmd := `gog gmail send --to recipient@example.com --account owner@corp.com --body "SSN 123-45-6789"`
	shielded := Shield(cmd)

	if containsSubstr(shielded.Command, "owner@corp.com") {
		t.Error("shielded command should not contain the account value")
	}
	if !containsSubstr(shielded.Command, "recipient@example.com") {
		t.Error("shielded command should still contain unrelated values")
	}

	restored := shielded.Unshield(shielded.Command)
	if restored != cmd {
		t.Errorf("unshield round-trip mismatch:\n got  %q\n want %q", restored, cmd)
	}
}

func TestShield_QuotedValue(t *testing.T) {
	cmd := `tool run --client "Acme Corp" --account='owner@corp.com'`
	shielded := Shield(cmd)
	if containsSubstr(shielded.Command, "Acme Corp") {
		t.Error("quoted client value should be shielded")
	}
	restored := shielded.Unshield(shielded.Command)
	if restored != cmd {
		t.Errorf("got %q want %q", restored, cmd)
	}
}

func containsSubstr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
