package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/kestrelworks/chatloop/internal/wire"
	"github.com/kestrelworks/chatloop/messages"
)

// HTTPTransport posts the request as JSON and reads the reply as
// newline-delimited wire events. Endpoints that answer with a single
// application/json document (non-streaming backends) are accepted too: the
// complete message is re-expressed as the equivalent event sequence so the
// rest of the pipeline never notices the difference.
type HTTPTransport struct {
	Endpoint string
	APIKey   string

	// Client defaults to http.DefaultClient when nil.
	Client *http.Client
}

func (t *HTTPTransport) httpClient() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, req Request) (Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("encode request: %w", err)}
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/x-ndjson")
	if t.APIKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := t.httpClient().Do(hreq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, &TransportError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("endpoint rejected request: %s", bytes.TrimSpace(snippet)),
		}
	}

	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mt == "application/json" {
		defer resp.Body.Close()
		doc, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &TransportError{Err: fmt.Errorf("read response: %w", err)}
		}
		return synthesizeStream(doc)
	}

	return &ndjsonStream{body: resp.Body, dec: wire.NewDecoder(resp.Body)}, nil
}

type ndjsonStream struct {
	body io.ReadCloser
	dec  *wire.Decoder
}

func (s *ndjsonStream) Next(ctx context.Context) (wire.Event, error) {
	return s.dec.Next(ctx)
}

func (s *ndjsonStream) Close() error { return s.body.Close() }

// completeResponse is the non-streaming reply document.
type completeResponse struct {
	Role       messages.Role           `json:"role"`
	Content    []messages.ContentBlock `json:"content"`
	StopReason messages.StopReason     `json:"stopReason"`
	Usage      *wire.Usage             `json:"usage,omitempty"`
}

// synthesizeStream converts a complete message document into the event
// sequence a streaming endpoint would have produced for it.
func synthesizeStream(doc []byte) (Stream, error) {
	var cr completeResponse
	if err := json.Unmarshal(doc, &cr); err != nil {
		return nil, &wire.ProtocolError{Reason: "malformed non-streaming response", Raw: string(doc)}
	}
	if cr.StopReason == "" {
		return nil, &wire.ProtocolError{Reason: "non-streaming response missing stopReason"}
	}

	var evs []wire.Event
	for i, blk := range cr.Content {
		switch {
		case blk.Text != nil:
			evs = append(evs, wire.Event{ContentBlockDelta: &wire.ContentBlockDelta{
				ContentBlockIndex: i,
				Delta:             wire.Delta{Text: blk.Text},
			}})

		case blk.Reasoning != nil:
			rd := wire.ReasoningDelta{}
			if rt := blk.Reasoning.ReasoningText; rt != nil {
				rd.Text = &rt.Text
				if rt.Signature != "" {
					rd.Signature = &rt.Signature
				}
			} else {
				rd.RedactedContent = &blk.Reasoning.RedactedContent
			}
			evs = append(evs, wire.Event{ContentBlockDelta: &wire.ContentBlockDelta{
				ContentBlockIndex: i,
				Delta:             wire.Delta{ReasoningContent: &rd},
			}})

		case blk.ToolUse != nil:
			evs = append(evs, wire.Event{ContentBlockStart: &wire.ContentBlockStart{
				ContentBlockIndex: i,
				Start:             wire.BlockStart{ToolUse: &wire.ToolUseStart{ToolUseID: blk.ToolUse.ToolUseID, Name: blk.ToolUse.Name}},
			}})
			if len(blk.ToolUse.Input) > 0 {
				raw, err := json.Marshal(blk.ToolUse.Input)
				if err != nil {
					return nil, &wire.ProtocolError{Reason: fmt.Sprintf("unencodable tool input for block %d", i)}
				}
				evs = append(evs, wire.Event{ContentBlockDelta: &wire.ContentBlockDelta{
					ContentBlockIndex: i,
					Delta:             wire.Delta{ToolUse: &wire.ToolUseDelta{Input: string(raw)}},
				}})
			}

		default:
			return nil, &wire.ProtocolError{Reason: fmt.Sprintf("non-streaming response block %d matches no known kind", i)}
		}
		evs = append(evs, wire.Event{ContentBlockStop: &wire.ContentBlockStop{ContentBlockIndex: i}})
	}

	if cr.Usage != nil {
		evs = append(evs, wire.Event{Metadata: &wire.Metadata{Usage: *cr.Usage}})
	}
	evs = append(evs, wire.Event{MessageStop: &wire.MessageStop{StopReason: cr.StopReason}})

	return &eventStream{events: evs}, nil
}

// eventStream replays a fixed event slice.
type eventStream struct {
	events []wire.Event
	pos    int
}

func (s *eventStream) Next(ctx context.Context) (wire.Event, error) {
	if err := ctx.Err(); err != nil {
		return wire.Event{}, err
	}
	if s.pos >= len(s.events) {
		return wire.Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *eventStream) Close() error { return nil }
