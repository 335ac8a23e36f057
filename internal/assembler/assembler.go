// Package assembler reconstructs one assistant message from an ordered wire
// event stream.
//
// Invariants:
//   - Events are applied strictly sequentially; later deltas depend on
//     earlier ones having initialized their block.
//   - Blocks live at the wire-addressed index, which may arrive out of order
//     and leave earlier indices unset until their own start/first delta.
//   - reasoningText and redactedContent are mutually exclusive per block;
//     finalizing one erases the other.
//   - A tool-use block's input is a string accumulator until its blockStop,
//     where it is hard-parsed exactly once.
//   - The message freezes the instant messageStop is observed.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kestrelworks/chatloop/internal/wire"
	"github.com/kestrelworks/chatloop/messages"
)

// ErrToolInputMalformed marks a finalized tool input that failed the hard
// parse at block close. It is a protocol error: the turn fails rather than
// silently continuing.
var ErrToolInputMalformed = errors.New("tool input malformed")

// EventSource is the pull iterator the assembler drains. io.EOF signals end
// of stream.
type EventSource interface {
	Next(ctx context.Context) (wire.Event, error)
}

// Result is the completed assembly: the frozen message, why the model
// stopped, and any usage metadata observed on the stream.
type Result struct {
	Message    messages.Message
	StopReason messages.StopReason
	Usage      wire.Usage
	HasUsage   bool
}

// Assembler builds one assistant message block-by-block. Not safe for
// concurrent use; one Assembler serves one response stream.
type Assembler struct {
	msg      messages.Message
	stop     messages.StopReason
	done     bool
	usage    wire.Usage
	hasUsage bool

	// onUpdate, when set, receives a deep-copied snapshot of the in-progress
	// message after every mutating event, suitable for live rendering.
	onUpdate func(messages.Message)
}

// New returns an Assembler for a fresh assistant turn. onUpdate may be nil.
func New(onUpdate func(messages.Message)) *Assembler {
	return &Assembler{
		msg:      messages.Message{Role: messages.RoleAssistant, Content: []messages.ContentBlock{}},
		onUpdate: onUpdate,
	}
}

// Snapshot returns a deep copy of the in-progress message.
func (a *Assembler) Snapshot() messages.Message { return a.msg.Clone() }

// Done reports whether messageStop has been observed.
func (a *Assembler) Done() bool { return a.done }

// Run drains src until messageStop and returns the completed result. A
// stream that ends before messageStop is a protocol error.
func (a *Assembler) Run(ctx context.Context, src EventSource) (Result, error) {
	for !a.done {
		ev, err := src.Next(ctx)
		if err != nil {
			if err == io.EOF {
				return Result{}, &wire.ProtocolError{Reason: "stream ended before messageStop"}
			}
			return Result{}, err
		}
		if err := a.Apply(ev); err != nil {
			return Result{}, err
		}
	}
	return Result{Message: a.msg, StopReason: a.stop, Usage: a.usage, HasUsage: a.hasUsage}, nil
}

// Apply folds one event into the message, in arrival order.
func (a *Assembler) Apply(ev wire.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if a.done {
		return &wire.ProtocolError{Reason: "event after messageStop"}
	}

	switch {
	case ev.ContentBlockStart != nil:
		if err := a.applyStart(ev.ContentBlockStart); err != nil {
			return err
		}
	case ev.ContentBlockDelta != nil:
		if err := a.applyDelta(ev.ContentBlockDelta); err != nil {
			return err
		}
	case ev.ContentBlockStop != nil:
		if err := a.applyStop(ev.ContentBlockStop); err != nil {
			return err
		}
	case ev.MessageStop != nil:
		a.stop = ev.MessageStop.StopReason
		a.done = true
		return nil
	case ev.Metadata != nil:
		// Accounting only; no message mutation, no snapshot.
		a.usage = ev.Metadata.Usage
		a.hasUsage = true
		return nil
	}

	if a.onUpdate != nil {
		a.onUpdate(a.msg.Clone())
	}
	return nil
}

// block grows the content array as needed and returns the slot at idx.
// Intervening indices stay unset until their own start or first delta.
func (a *Assembler) block(idx int) (*messages.ContentBlock, error) {
	if idx < 0 {
		return nil, &wire.ProtocolError{Reason: fmt.Sprintf("negative block index %d", idx)}
	}
	for len(a.msg.Content) <= idx {
		a.msg.Content = append(a.msg.Content, messages.ContentBlock{})
	}
	return &a.msg.Content[idx], nil
}

func (a *Assembler) applyStart(st *wire.ContentBlockStart) error {
	blk, err := a.block(st.ContentBlockIndex)
	if err != nil {
		return err
	}
	// Only tool-use blocks announce themselves; other kinds begin with their
	// first delta, so a bare start just reserves the index.
	if tu := st.Start.ToolUse; tu != nil {
		*blk = messages.ContentBlock{ToolUse: &messages.ToolUseBlock{
			ToolUseID: tu.ToolUseID,
			Name:      tu.Name,
			RawInput:  "",
		}}
	}
	return nil
}

func (a *Assembler) applyDelta(d *wire.ContentBlockDelta) error {
	blk, err := a.block(d.ContentBlockIndex)
	if err != nil {
		return err
	}
	switch {
	case d.Delta.Text != nil:
		if blk.Text == nil {
			*blk = messages.ContentBlock{Text: new(string)}
		}
		*blk.Text += *d.Delta.Text
		return nil

	case d.Delta.ReasoningContent != nil:
		if blk.Reasoning == nil {
			*blk = messages.ContentBlock{Reasoning: &messages.ReasoningBlock{}}
		}
		applyReasoning(blk.Reasoning, d.Delta.ReasoningContent)
		return nil

	case d.Delta.ToolUse != nil:
		if blk.ToolUse == nil {
			return &wire.ProtocolError{Reason: fmt.Sprintf("toolUse delta for block %d before its start", d.ContentBlockIndex)}
		}
		if blk.ToolUse.Closed() {
			return &wire.ProtocolError{Reason: fmt.Sprintf("toolUse delta for block %d after its stop", d.ContentBlockIndex)}
		}
		blk.ToolUse.RawInput += d.Delta.ToolUse.Input
		return nil

	default:
		return &wire.ProtocolError{Reason: "delta matches no known kind"}
	}
}

// applyReasoning applies the mutual-exclusion rules: a signature fragment
// finalizes the reasoningText form and erases redactedContent; a
// redactedContent fragment finalizes the redacted form and erases
// reasoningText. Text and signature accumulate independently.
func applyReasoning(rb *messages.ReasoningBlock, d *wire.ReasoningDelta) {
	if d.Text != nil {
		if rb.ReasoningText == nil {
			rb.ReasoningText = &messages.ReasoningText{}
		}
		rb.ReasoningText.Text += *d.Text
	}
	if d.Signature != nil {
		if rb.ReasoningText == nil {
			rb.ReasoningText = &messages.ReasoningText{}
		}
		rb.ReasoningText.Signature += *d.Signature
		rb.RedactedContent = ""
	}
	if d.RedactedContent != nil {
		rb.RedactedContent += *d.RedactedContent
		rb.ReasoningText = nil
	}
}

func (a *Assembler) applyStop(st *wire.ContentBlockStop) error {
	blk, err := a.block(st.ContentBlockIndex)
	if err != nil {
		return err
	}
	if tu := blk.ToolUse; tu != nil {
		if tu.Closed() {
			return &wire.ProtocolError{Reason: fmt.Sprintf("duplicate blockStop for block %d", st.ContentBlockIndex)}
		}
		if err := tu.CloseInput(); err != nil {
			return fmt.Errorf("%w: block %d: %v", ErrToolInputMalformed, st.ContentBlockIndex, err)
		}
	}
	return nil
}
