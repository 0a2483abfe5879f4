package gateway

import (
	"bytes"
	"strings"
	"testing"

	"moltguard/internal/vault"
)

type fakeSSERestorer struct {
	replace map[string]string
}

func (f fakeSSERestorer) RestoreSSELine(line string, _ vault.MappingTable) string {
	for k, v := range f.replace {
		line = strings.ReplaceAll(line, k, v)
	}
	return line
}

func TestRelaySSELineRestored_RestoresEachLine(t *testing.T) {
	body := "data: hello TOK_PERSON_1\n\ndata: [DONE]\n\n"
	rest := fakeSSERestorer{replace: map[string]string{"TOK_PERSON_1": "Alice"}}

	var out bytes.Buffer
	if err := relaySSELineRestored(&out, strings.NewReader(body), nil, rest); err != nil {
		t.Fatalf("relaySSELineRestored: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "Alice") {
		t.Errorf("expected restored text in output, got %q", got)
	}
	if strings.Contains(got, "TOK_PERSON_1") {
		t.Errorf("expected placeholder to be replaced, got %q", got)
	}
	if !strings.Contains(got, "[DONE]") {
		t.Errorf("expected terminal DONE line preserved, got %q", got)
	}
}

func TestRelaySSELineRestored_NoOpMappingPassesThrough(t *testing.T) {
	body := "data: plain text\n\n"
	rest := fakeSSERestorer{}

	var out bytes.Buffer
	if err := relaySSELineRestored(&out, strings.NewReader(body), nil, rest); err != nil {
		t.Fatalf("relaySSELineRestored: %v", err)
	}
	if out.String() != body {
		t.Errorf("got %q, want %q", out.String(), body)
	}
}
