package gateway

import (
	"io"
	"net/http"
)

// flushingCopy copies from src to dst, flushing dst after every successful
// write when dst implements http.Flusher, so chunks reach the client
// promptly rather than waiting in a buffer. The no-restoration SSE relay
// mode does not call it: relayLineRestoredSSE uses relaySSELineRestored,
// which flushes after every line.
func flushingCopy(dst io.Writer, src io.Reader) {
	flusher, canFlush := dst.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return
		}
	}
}
