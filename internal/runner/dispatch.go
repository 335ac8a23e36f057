package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kestrelworks/chatloop/internal/telemetry"
	"github.com/kestrelworks/chatloop/messages"
	"github.com/kestrelworks/chatloop/tools"
)

// Dispatcher executes the tool calls of one assistant turn. It never rejects
// a call: unknown tools, handler errors, and handler panics all come back as
// error-form tool results addressed to the requesting block, so the model
// sees every outcome.
type Dispatcher struct {
	Registry *tools.Registry
}

// Invoke runs one tool call to completion and always produces a result.
func (d *Dispatcher) Invoke(ctx context.Context, call *messages.ToolUseBlock) messages.ToolResult {
	turnID, _ := telemetry.TurnIDFromContext(ctx)

	emit := func(durationMs int64, outputSize int, errStr string) {
		fields := map[string]any{
			"tool_name":   call.Name,
			"duration_ms": durationMs,
			"input_size":  len(call.RawInput) + approxSize(call.Input),
			"output_size": outputSize,
			"turn_id":     turnID,
		}
		if errStr != "" {
			fields["error"] = errStr
		} else {
			fields["error"] = nil
		}
		telemetry.Emit("tool_exec", fields)
	}

	start := time.Now()

	def, ok := d.Registry.Get(call.Name)
	if !ok {
		emit(time.Since(start).Milliseconds(), 0, "tool not found")
		return messages.NewToolErrorResult(call.ToolUseID, fmt.Sprintf("Error running %s: tool not found", call.Name))
	}

	value, err := d.run(ctx, def, call.Input)
	if err != nil {
		// Emit a generic error string to avoid leaking raw payloads in telemetry
		emit(time.Since(start).Milliseconds(), 0, "tool error")
		// Preserve the detailed trace in the result content returned to the model
		return messages.NewToolErrorResult(call.ToolUseID, fmt.Sprintf("Error running %s: %v", call.Name, err))
	}
	emit(time.Since(start).Milliseconds(), approxSize(value), "")
	return messages.NewToolResult(call.ToolUseID, value)
}

// run executes the handler with panic containment: a panicking tool is an
// execution failure of that call, not of the process.
func (d *Dispatcher) run(ctx context.Context, def tools.ToolDefinition, input map[string]any) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return def.Function(ctx, input)
}

// InvokeAll fans the calls out concurrently and returns results in call
// order, so result position always mirrors the requesting block order.
func (d *Dispatcher) InvokeAll(ctx context.Context, calls []*messages.ToolUseBlock) []messages.ToolResult {
	results := make([]messages.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call *messages.ToolUseBlock) {
			defer wg.Done()
			results[i] = d.Invoke(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// approxSize reports the serialised size of v, for telemetry only.
func approxSize(v any) int {
	if v == nil {
		return 0
	}
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}
