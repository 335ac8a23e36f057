// Package provider sends assembled conversations to an inference endpoint and
// exposes the reply as a stream of wire events. Two transports exist: the
// native newline-delimited JSON transport, and an adapter over the Anthropic
// SDK's SSE stream.
package provider

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/kestrelworks/chatloop/internal/wire"
	"github.com/kestrelworks/chatloop/messages"
)

// ToolSpec is the model-facing description of one tool.
type ToolSpec struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty"`
}

// Request is one model invocation: the windowed transcript plus inference
// parameters.
type Request struct {
	Model         string             `json:"model"`
	System        string             `json:"system,omitempty"`
	Messages      []messages.Message `json:"messages"`
	Tools         []ToolSpec         `json:"tools,omitempty"`
	MaxTokens     int                `json:"maxTokens,omitempty"`
	ThoughtBudget int                `json:"thoughtBudget,omitempty"`

	// Stream asks the endpoint for event-by-event delivery. Endpoints may
	// ignore it and answer with a complete document; HTTPTransport synthesises
	// the event sequence in that case.
	Stream bool `json:"stream"`
}

// Stream yields the reply's wire events in arrival order. Close releases the
// underlying connection; it is safe to call after Next returned an error.
type Stream interface {
	Next(ctx context.Context) (wire.Event, error)
	Close() error
}

// Transport delivers a request and opens the reply stream. Implementations
// surface connection-level failures as *TransportError and leave event-level
// failures to the stream.
type Transport interface {
	Send(ctx context.Context, req Request) (Stream, error)
}

// TransportError is a connection-level failure: the request never produced a
// usable event stream. Status is the HTTP status when one was received, 0
// otherwise.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
