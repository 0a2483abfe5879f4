package pii

// Match is a transient detection result: one candidate span found by the
// EntityDetector during a single invocation on one text buffer.
type Match struct {
	Start    int
	End      int
	Category Category
	Text     string
}
