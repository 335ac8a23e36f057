package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kestrelworks/chatloop/internal/jsonrepair"
	"github.com/kestrelworks/chatloop/messages"
)

// renderer turns in-progress message snapshots into incremental terminal
// output: text is printed as it streams, tool calls are announced once their
// input closes, and reasoning shows up as a one-time marker. A turn may carry
// several assistant messages (one per tool-loop step); each starts its own
// output line.
type renderer struct {
	w io.Writer

	lastText     string
	printedText  int
	announced    map[string]bool
	saidThinking bool
	labelPrinted bool
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, announced: make(map[string]bool)}
}

// Reset prepares the renderer for the next user turn.
func (r *renderer) Reset() {
	r.lastText = ""
	r.printedText = 0
	r.announced = make(map[string]bool)
	r.saidThinking = false
	r.labelPrinted = false
}

// Update consumes one snapshot. Snapshots are cumulative within a single
// assistant message, so only the text beyond what was already printed goes
// out. A snapshot that no longer extends the previous text belongs to the
// next step's message: the line is closed and per-message state starts over.
func (r *renderer) Update(m messages.Message) {
	full := m.TextContent()
	if !strings.HasPrefix(full, r.lastText) {
		if r.labelPrinted {
			fmt.Fprintln(r.w)
		}
		r.printedText = 0
		r.saidThinking = false
		r.labelPrinted = false
	}
	r.lastText = full

	for _, b := range m.Content {
		if b.Reasoning != nil && !r.saidThinking {
			r.saidThinking = true
			fmt.Fprint(r.w, "\x1b[90m[thinking]\x1b[0m\n")
		}
	}

	if len(full) > r.printedText {
		if !r.labelPrinted {
			r.labelPrinted = true
			fmt.Fprint(r.w, "\x1b[93mClaude\x1b[0m: ")
		}
		fmt.Fprint(r.w, full[r.printedText:])
		r.printedText = len(full)
	}

	for _, tu := range m.ToolUses() {
		if tu.Closed() && !r.announced[tu.ToolUseID] {
			r.announced[tu.ToolUseID] = true
			fmt.Fprintf(r.w, "\n\x1b[92mtool\x1b[0m: %s(%s)\n", tu.Name, compactInput(tu.Input))
		} else if !tu.Closed() && tu.RawInput != "" {
			// Best-effort view of the input while it is still streaming.
			slog.Debug("tool input streaming", "tool", tu.Name, "partial", jsonrepair.Repair(tu.RawInput))
		}
	}
}

// Finish closes out the turn: the final message is run through Update so
// anything streaming missed is still printed, then the line is terminated.
func (r *renderer) Finish(m messages.Message) {
	r.Update(m)
	if r.labelPrinted {
		fmt.Fprintln(r.w)
	}
}

func compactInput(input map[string]any) string {
	if len(input) == 0 {
		return ""
	}
	b, err := json.Marshal(input)
	if err != nil {
		return "…"
	}
	if len(b) > 120 {
		return string(b[:120]) + "…"
	}
	return string(b)
}
