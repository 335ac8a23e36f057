package runner_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kestrelworks/chatloop/internal/assembler"
	"github.com/kestrelworks/chatloop/internal/provider"
	"github.com/kestrelworks/chatloop/internal/runner"
	"github.com/kestrelworks/chatloop/internal/wire"
	"github.com/kestrelworks/chatloop/messages"
	"github.com/kestrelworks/chatloop/tools"
)

// scriptedTransport returns pre-scripted event streams in order and records
// every request it receives.
type scriptedTransport struct {
	scripts [][]wire.Event
	err     error
	sent    []provider.Request
}

func (s *scriptedTransport) Send(_ context.Context, req provider.Request) (provider.Stream, error) {
	s.sent = append(s.sent, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.scripts) == 0 {
		return nil, errors.New("scripted transport: no responses left")
	}
	events := s.scripts[0]
	s.scripts = s.scripts[1:]
	return &scriptStream{events: events}, nil
}

type scriptStream struct {
	events []wire.Event
	pos    int
}

func (s *scriptStream) Next(_ context.Context) (wire.Event, error) {
	if s.pos >= len(s.events) {
		return wire.Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *scriptStream) Close() error { return nil }

func textDelta(idx int, text string) wire.Event {
	return wire.Event{ContentBlockDelta: &wire.ContentBlockDelta{ContentBlockIndex: idx, Delta: wire.Delta{Text: &text}}}
}

func toolStart(idx int, id, name string) wire.Event {
	return wire.Event{ContentBlockStart: &wire.ContentBlockStart{ContentBlockIndex: idx, Start: wire.BlockStart{ToolUse: &wire.ToolUseStart{ToolUseID: id, Name: name}}}}
}

func toolDelta(idx int, fragment string) wire.Event {
	return wire.Event{ContentBlockDelta: &wire.ContentBlockDelta{ContentBlockIndex: idx, Delta: wire.Delta{ToolUse: &wire.ToolUseDelta{Input: fragment}}}}
}

func blockStop(idx int) wire.Event {
	return wire.Event{ContentBlockStop: &wire.ContentBlockStop{ContentBlockIndex: idx}}
}

func messageStop(reason messages.StopReason) wire.Event {
	return wire.Event{MessageStop: &wire.MessageStop{StopReason: reason}}
}

func metadata(in, out, total int) wire.Event {
	return wire.Event{Metadata: &wire.Metadata{Usage: wire.Usage{InputTokens: in, OutputTokens: out, TotalTokens: total}}}
}

// echoRegistry offers a single tool that returns its input back.
func echoRegistry() *tools.Registry {
	return tools.NewRegistry(tools.ToolDefinition{
		Name:        "echo",
		Description: "Returns its input unchanged.",
		InputSchema: tools.GenerateSchema[struct {
			Value string `json:"value"`
		}](),
		Function: func(_ context.Context, input map[string]any) (any, error) {
			return input, nil
		},
	})
}

func TestRunTurn_TextOnly(t *testing.T) {
	tr := &scriptedTransport{scripts: [][]wire.Event{
		{textDelta(0, "4"), messageStop(messages.StopEndTurn)},
	}}
	r := runner.New(tr, echoRegistry(), runner.Config{Model: "test-model"})

	msg, err := r.RunTurn(context.Background(), "2+2?")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := msg.TextContent(); got != "4" {
		t.Fatalf("final text = %q, want %q", got, "4")
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected exactly one request, got %d", len(tr.sent))
	}
	if n := len(tr.sent[0].Messages); n != 1 {
		t.Fatalf("request carried %d messages, want 1", n)
	}
	got := r.Transcript()
	if len(got) != 2 {
		t.Fatalf("transcript has %d messages, want 2", len(got))
	}
	if got[0].Role != messages.RoleUser || got[1].Role != messages.RoleAssistant {
		t.Fatalf("unexpected transcript roles: %s, %s", got[0].Role, got[1].Role)
	}
	if r.State() != runner.StateIdle {
		t.Fatalf("state after turn = %v, want idle", r.State())
	}
}

func TestRunTurn_ToolLoop(t *testing.T) {
	tr := &scriptedTransport{scripts: [][]wire.Event{
		{
			toolStart(0, "t1", "echo"),
			toolDelta(0, `{"value":`),
			toolDelta(0, `"hi"}`),
			blockStop(0),
			messageStop(messages.StopToolUse),
		},
		{textDelta(0, "done"), messageStop(messages.StopEndTurn)},
	}}
	r := runner.New(tr, echoRegistry(), runner.Config{Model: "test-model"})

	msg, err := r.RunTurn(context.Background(), "please echo hi")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := msg.TextContent(); got != "done" {
		t.Fatalf("final text = %q, want %q", got, "done")
	}
	if len(tr.sent) != 2 {
		t.Fatalf("expected two requests, got %d", len(tr.sent))
	}

	got := r.Transcript()
	if len(got) != 4 {
		t.Fatalf("transcript has %d messages, want 4", len(got))
	}
	uses := got[1].ToolUses()
	if len(uses) != 1 || uses[0].Name != "echo" || uses[0].Input["value"] != "hi" {
		t.Fatalf("unexpected tool_use message: %+v", got[1])
	}
	res := got[2].Content
	if len(res) != 1 || res[0].ToolResult == nil || res[0].ToolResult.ToolUseID != "t1" {
		t.Fatalf("unexpected tool_result message: %+v", got[2])
	}
	if res[0].ToolResult.IsError() {
		t.Fatalf("echo result flagged as error: %+v", res[0].ToolResult)
	}

	// The follow-up request carries the tool pair.
	second := tr.sent[1].Messages
	if n := len(second); n != 3 {
		t.Fatalf("second request carried %d messages, want 3", n)
	}
	if len(second[1].ToolUses()) != 1 || second[2].Content[0].ToolResult == nil {
		t.Fatalf("second request missing tool pair: %+v", second)
	}
}

func TestRunTurn_ToolsOfferedFromRegistry(t *testing.T) {
	tr := &scriptedTransport{scripts: [][]wire.Event{
		{textDelta(0, "ok"), messageStop(messages.StopEndTurn)},
	}}
	r := runner.New(tr, echoRegistry(), runner.Config{Model: "test-model"})
	if _, err := r.RunTurn(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	specs := tr.sent[0].Tools
	if len(specs) != 1 || specs[0].Name != "echo" || specs[0].InputSchema == nil {
		t.Fatalf("unexpected tool specs: %+v", specs)
	}
}

func TestRunTurn_SnapshotsStreamToCallback(t *testing.T) {
	var snaps []string
	tr := &scriptedTransport{scripts: [][]wire.Event{
		{textDelta(0, "he"), textDelta(0, "llo"), messageStop(messages.StopEndTurn)},
	}}
	r := runner.New(tr, echoRegistry(), runner.Config{
		Model:    "test-model",
		OnUpdate: func(m messages.Message) { snaps = append(snaps, m.TextContent()) },
	})
	if _, err := r.RunTurn(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(snaps) < 2 {
		t.Fatalf("expected at least two snapshots, got %d", len(snaps))
	}
	if last := snaps[len(snaps)-1]; last != "hello" {
		t.Fatalf("last snapshot text = %q, want %q", last, "hello")
	}
}

func TestRunTurn_UsageForwarded(t *testing.T) {
	usageCh := make(chan wire.Usage, 1)
	tr := &scriptedTransport{scripts: [][]wire.Event{
		{textDelta(0, "ok"), metadata(10, 5, 15), messageStop(messages.StopEndTurn)},
	}}
	r := runner.New(tr, echoRegistry(), runner.Config{
		Model:   "test-model",
		OnUsage: func(u wire.Usage) { usageCh <- u },
	})
	if _, err := r.RunTurn(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	u := <-usageCh
	if u.InputTokens != 10 || u.OutputTokens != 5 || u.TotalTokens != 15 {
		t.Fatalf("unexpected usage: %+v", u)
	}
}

func TestRunTurn_SendsPreparedWindowSubset(t *testing.T) {
	t.Setenv("CHATLOOP_TOKEN_BUDGET", "10")
	tr := &scriptedTransport{scripts: [][]wire.Event{
		{textDelta(0, "ok"), messageStop(messages.StopEndTurn)},
	}}
	r := runner.New(tr, echoRegistry(), runner.Config{Model: "test-model"})
	r.Restore([]messages.Message{messages.NewUserMessage("abc")})

	if _, err := r.RunTurn(context.Background(), "defgh"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	sent := tr.sent[0].Messages
	if len(sent) != 1 {
		t.Fatalf("expected 1 message in prepared window, got %d", len(sent))
	}
	if got := sent[0].TextContent(); got != "defgh" {
		t.Fatalf("prepared window payload = %q, want %q", got, "defgh")
	}
}

func TestRunTurn_OverBudgetNewest_ReturnsError_NoSend(t *testing.T) {
	t.Setenv("CHATLOOP_TOKEN_BUDGET", "1")
	tr := &scriptedTransport{}
	r := runner.New(tr, echoRegistry(), runner.Config{Model: "test-model"})

	_, err := r.RunTurn(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "newest group exceeds CHATLOOP_TOKEN_BUDGET") {
		t.Fatalf("expected over-budget newest error, got %v", err)
	}
	if len(tr.sent) != 0 {
		t.Fatalf("expected no request when over-budget newest, got %d", len(tr.sent))
	}
}

func TestRunTurn_InvalidBudget_ReturnsError(t *testing.T) {
	t.Setenv("CHATLOOP_TOKEN_BUDGET", "abc")
	tr := &scriptedTransport{}
	r := runner.New(tr, echoRegistry(), runner.Config{Model: "test-model"})
	_, err := r.RunTurn(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "invalid CHATLOOP_TOKEN_BUDGET") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestRunTurn_TransportErrorSurfaces(t *testing.T) {
	want := &provider.TransportError{Status: 503, Err: errors.New("overloaded")}
	tr := &scriptedTransport{err: want}
	r := runner.New(tr, echoRegistry(), runner.Config{Model: "test-model"})

	_, err := r.RunTurn(context.Background(), "hi")
	var te *provider.TransportError
	if !errors.As(err, &te) || te.Status != 503 {
		t.Fatalf("expected TransportError(503), got %v", err)
	}
}

func TestRunTurn_MalformedToolInputAbortsTurn(t *testing.T) {
	tr := &scriptedTransport{scripts: [][]wire.Event{
		{
			toolStart(0, "t1", "echo"),
			toolDelta(0, `{"value": oops`),
			blockStop(0),
			messageStop(messages.StopToolUse),
		},
	}}
	r := runner.New(tr, echoRegistry(), runner.Config{Model: "test-model"})
	_, err := r.RunTurn(context.Background(), "hi")
	if !errors.Is(err, assembler.ErrToolInputMalformed) {
		t.Fatalf("expected ErrToolInputMalformed, got %v", err)
	}
}

func TestRunTurn_CanceledDuringTools_DiscardsResults(t *testing.T) {
	tr := &scriptedTransport{scripts: [][]wire.Event{
		{
			toolStart(0, "t1", "echo"),
			toolDelta(0, `{"value":"hi"}`),
			blockStop(0),
			messageStop(messages.StopToolUse),
		},
		{textDelta(0, "done"), messageStop(messages.StopEndTurn)},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := tools.NewRegistry(tools.ToolDefinition{
		Name:        "echo",
		Description: "Returns its input unchanged.",
		InputSchema: tools.GenerateSchema[struct {
			Value string `json:"value"`
		}](),
		Function: func(_ context.Context, input map[string]any) (any, error) {
			// The caller walks away mid-execution.
			cancel()
			return input, nil
		},
	})
	r := runner.New(tr, reg, runner.Config{Model: "test-model"})

	_, err := r.RunTurn(ctx, "please echo hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected no follow-up request after cancellation, got %d", len(tr.sent))
	}
	got := r.Transcript()
	if len(got) != 2 {
		t.Fatalf("transcript has %d messages, want 2 (user + assistant)", len(got))
	}
	for _, m := range got {
		for _, b := range m.Content {
			if b.ToolResult != nil {
				t.Fatalf("tool result committed for an abandoned turn: %+v", m)
			}
		}
	}
	if r.State() != runner.StateIdle {
		t.Fatalf("state after canceled turn = %v, want idle", r.State())
	}
}

func TestRunTurn_RestoreSeedsTranscript(t *testing.T) {
	tr := &scriptedTransport{scripts: [][]wire.Event{
		{textDelta(0, "ok"), messageStop(messages.StopEndTurn)},
	}}
	r := runner.New(tr, echoRegistry(), runner.Config{Model: "test-model"})
	r.Restore([]messages.Message{
		messages.NewUserMessage("earlier question"),
		{Role: messages.RoleAssistant, Content: []messages.ContentBlock{}},
	})

	if _, err := r.RunTurn(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n := len(tr.sent[0].Messages); n != 3 {
		t.Fatalf("request carried %d messages, want restored 2 + new user", n)
	}
	if n := len(r.Transcript()); n != 4 {
		t.Fatalf("transcript has %d messages, want 4", n)
	}
}
