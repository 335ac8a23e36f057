package metrics

import (
	"strings"
	"unicode/utf8"
)

// Features are cheap deterministic measurements of a piece of prompt or tool
// text, reported in prompt_features telemetry and consumed by the send-window
// token heuristic.
type Features struct {
	Bytes int
	Runes int
	Words int
	Lines int
}

// CountFeatures measures s. Words are whitespace-separated fields; Lines is
// zero for the empty string, otherwise one more than the newline count.
func CountFeatures(s string) Features {
	f := Features{
		Bytes: len(s),
		Runes: utf8.RuneCountInString(s),
		Words: len(strings.Fields(s)),
	}
	if s != "" {
		f.Lines = 1 + strings.Count(s, "\n")
	}
	return f
}

// TokenEstimate is the input-token cost the send-window heuristic charges for
// this text: one token per rune. Calibration against provider-reported usage
// happens offline from the usage telemetry events.
func (f Features) TokenEstimate() int {
	return f.Runes
}
