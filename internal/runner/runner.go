package runner

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrelworks/chatloop/internal/assembler"
	"github.com/kestrelworks/chatloop/internal/provider"
	"github.com/kestrelworks/chatloop/internal/telemetry"
	"github.com/kestrelworks/chatloop/internal/windowing"
	"github.com/kestrelworks/chatloop/internal/wire"
	"github.com/kestrelworks/chatloop/messages"
	"github.com/kestrelworks/chatloop/tools"
)

// State is the runner's observable phase within a turn.
type State int32

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateExecutingTools
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateExecutingTools:
		return "executing_tools"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config carries the per-session inference parameters.
type Config struct {
	Model         string
	System        string
	MaxTokens     int
	ThoughtBudget int

	// OnUpdate receives in-progress assistant snapshots for live rendering.
	// Snapshots from a superseded turn are dropped before reaching it.
	OnUpdate func(messages.Message)

	// OnUsage receives token accounting asynchronously; a slow consumer
	// never stalls the stream.
	OnUsage func(wire.Usage)
}

// Runner owns the transcript and drives complete turns: send, stream,
// assemble, execute tools, repeat until the model stops for a reason other
// than tool use.
type Runner struct {
	transport provider.Transport
	dispatch  Dispatcher
	cfg       Config

	mu         sync.Mutex
	transcript []messages.Message

	state atomic.Int32
	// turn is incremented when a turn begins; snapshot callbacks compare
	// against it so a superseded turn's stream stops reaching the UI.
	turn atomic.Uint64
}

// New returns a Runner using the given transport and tool registry.
func New(transport provider.Transport, registry *tools.Registry, cfg Config) *Runner {
	return &Runner{
		transport: transport,
		dispatch:  Dispatcher{Registry: registry},
		cfg:       cfg,
	}
}

// State returns the current phase.
func (r *Runner) State() State { return State(r.state.Load()) }

// Transcript returns a deep copy of the committed conversation.
func (r *Runner) Transcript() []messages.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]messages.Message, len(r.transcript))
	for i, m := range r.transcript {
		out[i] = m.Clone()
	}
	return out
}

// Restore seeds the transcript from a persisted conversation. Only valid
// between turns.
func (r *Runner) Restore(msgs []messages.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript = append(r.transcript[:0], msgs...)
}

func (r *Runner) append(m messages.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript = append(r.transcript, m)
}

// toolSpecs builds the model-facing tool list from the registry.
func (r *Runner) toolSpecs() []provider.ToolSpec {
	defs := r.dispatch.Registry.All()
	out := make([]provider.ToolSpec, 0, len(defs))
	for _, d := range defs {
		out = append(out, provider.ToolSpec{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}
	return out
}

// RunTurn executes one user turn to completion: it appends the user message,
// then loops send → assemble → execute tools until the model stops without
// requesting tools. The final assistant message is returned; every
// intermediate message is already committed to the transcript.
func (r *Runner) RunTurn(ctx context.Context, user string) (messages.Message, error) {
	turnID := r.turn.Add(1)

	if id, ok := telemetry.TurnIDFromContext(ctx); !ok || id == "" {
		ctx = telemetry.WithTurnID(ctx, fmt.Sprintf("turn-%d-%d", turnID, time.Now().UnixNano()))
	}
	id, _ := telemetry.TurnIDFromContext(ctx)
	telemetry.Emit("turn_start", map[string]any{"turn_id": id, "model": r.cfg.Model})
	telemetry.EmitPromptFeatures(ctx, user)

	r.append(messages.NewUserMessage(user))
	defer r.state.Store(int32(StateIdle))

	steps := 0
	for {
		steps++
		if err := ctx.Err(); err != nil {
			return messages.Message{}, err
		}
		window, err := r.window(ctx)
		if err != nil {
			return messages.Message{}, err
		}

		r.state.Store(int32(StateSending))
		req := provider.Request{
			Model:         r.cfg.Model,
			System:        r.cfg.System,
			Messages:      window,
			Tools:         r.toolSpecs(),
			MaxTokens:     r.cfg.MaxTokens,
			ThoughtBudget: r.cfg.ThoughtBudget,
			Stream:        true,
		}
		telemetry.PersistPayload(fmt.Sprintf("%s-step-%d-request", id, steps), req)
		stream, err := r.transport.Send(ctx, req)
		if err != nil {
			return messages.Message{}, err
		}

		r.state.Store(int32(StateStreaming))
		result, err := r.assemble(ctx, turnID, stream)
		_ = stream.Close()
		if err != nil {
			return messages.Message{}, err
		}

		telemetry.PersistPayload(fmt.Sprintf("%s-step-%d-response", id, steps), result.Message)
		r.append(result.Message)
		if result.HasUsage {
			r.forwardUsage(ctx, result.Usage)
		}

		uses := result.Message.ToolUses()
		if result.StopReason != messages.StopToolUse || len(uses) == 0 {
			telemetry.Emit("turn_complete", map[string]any{
				"turn_id":     id,
				"steps":       steps,
				"stop_reason": string(result.StopReason),
			})
			return result.Message, nil
		}

		r.state.Store(int32(StateExecutingTools))
		results := r.dispatch.InvokeAll(ctx, uses)
		if err := ctx.Err(); err != nil {
			// Turn abandoned while tools ran; do not commit their results.
			return messages.Message{}, err
		}
		r.append(messages.NewToolResultMessage(results))
	}
}

func (r *Runner) assemble(ctx context.Context, turnID uint64, stream provider.Stream) (assembler.Result, error) {
	var onUpdate func(messages.Message)
	if r.cfg.OnUpdate != nil {
		onUpdate = func(m messages.Message) {
			// Drop snapshots from a superseded turn.
			if r.turn.Load() != turnID {
				return
			}
			r.cfg.OnUpdate(m)
		}
	}
	return assembler.New(onUpdate).Run(ctx, stream)
}

// forwardUsage hands accounting to the sink without blocking the turn.
func (r *Runner) forwardUsage(ctx context.Context, u wire.Usage) {
	telemetry.EmitUsage(ctx, u.InputTokens, u.OutputTokens, u.TotalTokens)
	if r.cfg.OnUsage != nil {
		go r.cfg.OnUsage(u)
	}
}

// window returns the transcript slice to send. When CHATLOOP_TOKEN_BUDGET is
// set, the pair-safe budgeted window is used; otherwise the full transcript
// goes out.
func (r *Runner) window(ctx context.Context) ([]messages.Message, error) {
	r.mu.Lock()
	full := make([]messages.Message, len(r.transcript))
	copy(full, r.transcript)
	r.mu.Unlock()

	v := os.Getenv("CHATLOOP_TOKEN_BUDGET")
	if v == "" {
		return full, nil
	}
	budget, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("invalid CHATLOOP_TOKEN_BUDGET %q: %w", v, err)
	}

	window, stats := windowing.PrepareSendWindow(full, budget, windowing.HeuristicCounter{})

	turnID, _ := telemetry.TurnIDFromContext(ctx)
	telemetry.Emit("window_prepared", map[string]any{
		"turn_id":            turnID,
		"model":              r.cfg.Model,
		"budget":             stats.Budget,
		"total_estimated":    stats.Total,
		"included_groups":    stats.IncludedGroups,
		"skipped_groups":     stats.SkippedGroups,
		"over_budget_newest": stats.OverBudgetNewest,
	})

	// With tool output caps the newest group should always fit within the
	// budget. If not, treat it as a misconfiguration and fail fast.
	if stats.OverBudgetNewest {
		return nil, fmt.Errorf("windowing: newest group exceeds CHATLOOP_TOKEN_BUDGET; increase budget with headroom or tighten tool caps")
	}
	return window, nil
}
