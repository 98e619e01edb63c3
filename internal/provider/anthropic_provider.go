package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/redeven-labs/turnengine/internal/session"
)

// defaultMaxOutputTokens is the fallback token budget for a turn;
// Anthropic's MessageNewParams.MaxTokens is mandatory and the engine has no
// budgeting concept of its own.
const defaultMaxOutputTokens = 4096

// AnthropicProvider streams turns through the Messages API, accumulating the
// streamed events into one Message and emitting each content block when it
// stops, reduced to the output-item-done / response-completed event pair.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider builds a client from the given API key.
func NewAnthropicProvider(apiKey string, opts ...aoption.RequestOption) *AnthropicProvider {
	all := []aoption.RequestOption{aoption.WithAPIKey(apiKey)}
	all = append(all, opts...)
	return &AnthropicProvider{client: anthropic.NewClient(all...)}
}

func (p *AnthropicProvider) StreamTurn(ctx context.Context, req Request, onEvent func(Event)) error {
	if strings.TrimSpace(req.Model) == "" {
		return errors.New("missing model")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: defaultMaxOutputTokens,
		Messages:  buildAnthropicMessages(req.Input),
		Tools:     buildAnthropicTools(req.Tools),
	}
	if strings.TrimSpace(req.Instructions) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	msg := anthropic.Message{}
	emitted := map[int64]bool{}

	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return &ClassifiedError{Kind: KindUnknown, Message: err.Error(), Err: err}
		}
		if stop, ok := event.AsAny().(anthropic.ContentBlockStopEvent); ok {
			idx := int(stop.Index)
			if idx >= 0 && idx < len(msg.Content) && !emitted[stop.Index] {
				if item, ok := convertAnthropicBlock(msg.Content[idx]); ok {
					emitted[stop.Index] = true
					onEvent(Event{Type: EventOutputItemDone, Item: item})
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return classifyAnthropicError(err)
	}

	out := make([]session.Item, 0, len(msg.Content))
	for _, block := range msg.Content {
		if item, ok := convertAnthropicBlock(block); ok {
			out = append(out, item)
		}
	}
	onEvent(Event{Type: EventCompleted, Output: out, Status: string(msg.StopReason), ResponseID: msg.ID})
	return nil
}

func buildAnthropicTools(defs []ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if strings.TrimSpace(def.Name) == "" {
			continue
		}
		param := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Type: "object", Properties: def.Parameters["properties"]},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

func buildAnthropicMessages(items []session.Item) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(items))
	for _, it := range items {
		switch it.Kind {
		case session.ItemKindMessage:
			text := joinContentText(it.Content)
			if text == "" {
				continue
			}
			block := anthropic.NewTextBlock(text)
			if it.Role == session.RoleAssistant {
				out = append(out, anthropic.NewAssistantMessage(block))
			} else {
				out = append(out, anthropic.NewUserMessage(block))
			}
		case session.ItemKindFunctionCall:
			input := json.RawMessage(it.ArgsJSON)
			out = append(out, anthropic.NewAssistantMessage(anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{ID: it.CallID, Name: it.ToolName, Input: input},
			}))
		case session.ItemKindFunctionOutput:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(it.CallID, it.Output, false)))
		}
	}
	return out
}

// convertAnthropicBlock maps one accumulated content block into the
// conversation item shape.
func convertAnthropicBlock(block anthropic.ContentBlockUnion) (session.Item, bool) {
	switch variant := block.AsAny().(type) {
	case anthropic.TextBlock:
		if strings.TrimSpace(variant.Text) == "" {
			return session.Item{}, false
		}
		return session.NewMessage(session.RoleAssistant, session.ContentPart{Type: "text", Text: variant.Text}), true
	case anthropic.ToolUseBlock:
		raw := "{}"
		if len(variant.Input) > 0 {
			raw = string(variant.Input)
		}
		return session.NewFunctionCall(variant.ID, variant.Name, raw), true
	default:
		return session.Item{}, false
	}
}

// classifyAnthropicError maps an anthropic-sdk-go request error into the
// shared error taxonomy from the HTTP status and error text only: 429 is a
// rate limit (with any retry hint), 5xx transient, a 404 mentioning "model"
// model-not-found, other 4xx a client error. Context overflow is not
// detected for this backend, and Code, Type and RequestID are left empty.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return &ClassifiedError{Kind: KindTransient, Message: err.Error(), Err: err}
	}

	ce := &ClassifiedError{
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Error(),
		Err:        err,
	}
	switch {
	case apiErr.StatusCode == 429:
		ce.Kind = KindRateLimit
		if hint, ok := ParseRetryHint(ce.Message); ok {
			ce.RetryAfter = hint
		}
	case apiErr.StatusCode >= 500:
		ce.Kind = KindTransient
	case apiErr.StatusCode == 404 && strings.Contains(strings.ToLower(ce.Message), "model"):
		ce.Kind = KindModelNotFound
	case apiErr.StatusCode >= 400:
		ce.Kind = KindClientError
	default:
		ce.Kind = KindUnknown
	}
	return ce
}
