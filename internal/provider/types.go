// Package provider adapts the two remote reasoning-model backends the turn
// engine can drive (OpenAI Responses API, Anthropic Messages API) to a single
// streamed-events shape: a stream of output-item-done events followed by one
// response-completed event carrying the full output list, a status, and a
// response id.
package provider

import (
	"context"

	"github.com/redeven-labs/turnengine/internal/session"
)

// ToolDef mirrors the shell tool definition registered with the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
	Strict      bool
}

// Request is one streamed-turn request.
type Request struct {
	Model              string
	Instructions       string
	PreviousResponseID string
	Input              []session.Item
	Tools              []ToolDef
}

// EventType discriminates the two event kinds the turn engine consumes.
type EventType string

const (
	// EventOutputItemDone corresponds to response.output_item.done{item}.
	EventOutputItemDone EventType = "output_item.done"
	// EventCompleted corresponds to response.completed{response:{...}}.
	EventCompleted EventType = "response.completed"
)

// Event is one element of the streamed turn.
type Event struct {
	Type EventType

	// populated when Type == EventOutputItemDone
	Item session.Item

	// populated when Type == EventCompleted
	Output     []session.Item
	Status     string
	ResponseID string
}

// Provider streams one turn of a tool-enabled conversation. Implementations
// must call onEvent synchronously, in emission order, and must not retain
// req after return. Implementations classify API errors into
// *ClassifiedError themselves; the turn engine treats any other error as
// KindTransient.
type Provider interface {
	StreamTurn(ctx context.Context, req Request, onEvent func(Event)) error
}
