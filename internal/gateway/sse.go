package gateway

import (
	"bufio"
	"io"
	"strings"

	"moltguard/internal/vault"
)

// sseLineRestorer is the subset of *restorer.Restorer the gateway needs for
// line-buffered streaming relay.
type sseLineRestorer interface {
	RestoreSSELine(line string, mapping vault.MappingTable) string
}

// relaySSELineRestored copies an upstream SSE body to w, restoring
// placeholders line by line. Safe only when no placeholder can split across
// a chunk boundary mid-line, which line buffering guarantees (spec §4.5
// streaming mode 2: "stream && !needs_restoration" is the caller's
// precondition, but restoring is harmless even when mapping is empty).
func relaySSELineRestored(w io.Writer, body io.Reader, mapping vault.MappingTable, rest sseLineRestorer) error {
	flusher, canFlush := w.(interface{ Flush() })
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		restored := rest.RestoreSSELine(line, mapping)
		if !strings.HasSuffix(restored, "\n") {
			restored += "\n"
		}
		if _, err := io.WriteString(w, restored); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
	}
	return scanner.Err()
}
