package provider

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"

	"github.com/redeven-labs/turnengine/internal/session"
)

// OpenAIProvider streams turns through the Responses API with
// ParallelToolCalls=false, building each function tool with its ToolDef's
// Strict flag, reduced to the output-item-done / response-completed event
// pair the turn engine consumes.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider builds a client from the given base URL (empty uses the
// SDK default) and API key.
func NewOpenAIProvider(apiKey, baseURL string, opts ...ooption.RequestOption) *OpenAIProvider {
	all := []ooption.RequestOption{ooption.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		all = append(all, ooption.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	return &OpenAIProvider{client: openai.NewClient(all...)}
}

func (p *OpenAIProvider) StreamTurn(ctx context.Context, req Request, onEvent func(Event)) error {
	if strings.TrimSpace(req.Model) == "" {
		return errors.New("missing model")
	}

	params := oresponses.ResponseNewParams{
		Model:             oshared.ResponsesModel(req.Model),
		ParallelToolCalls: openai.Bool(false),
	}
	if strings.TrimSpace(req.Instructions) != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if strings.TrimSpace(req.PreviousResponseID) != "" {
		params.PreviousResponseID = openai.String(req.PreviousResponseID)
	}
	params.Tools = buildOpenAITools(req.Tools)
	params.Input = oresponses.ResponseNewParamsInputUnion{OfInputItemList: buildOpenAIInput(req.Input)}

	stream := p.client.Responses.NewStreaming(ctx, params)
	for stream.Next() {
		ev := stream.Current()
		switch strings.TrimSpace(ev.Type) {
		case "response.output_item.done":
			item, ok := convertOpenAIOutputItem(ev.Item)
			if ok {
				onEvent(Event{Type: EventOutputItemDone, Item: item})
			}
		case "response.completed":
			out := make([]session.Item, 0, len(ev.Response.Output))
			for _, raw := range ev.Response.Output {
				if item, ok := convertOpenAIOutputItem(raw); ok {
					out = append(out, item)
				}
			}
			onEvent(Event{Type: EventCompleted, Output: out, Status: string(ev.Response.Status), ResponseID: ev.Response.ID})
		}
	}
	if err := stream.Err(); err != nil {
		return classifyOpenAIError(err)
	}
	return nil
}

func buildOpenAITools(defs []ToolDef) []oresponses.ToolUnionParam {
	out := make([]oresponses.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if strings.TrimSpace(def.Name) == "" {
			continue
		}
		out = append(out, oresponses.ToolParamOfFunction(def.Name, def.Parameters, def.Strict))
	}
	return out
}

func buildOpenAIInput(items []session.Item) oresponses.ResponseInputParam {
	out := make(oresponses.ResponseInputParam, 0, len(items))
	for _, it := range items {
		switch it.Kind {
		case session.ItemKindMessage:
			text := joinContentText(it.Content)
			if text == "" {
				continue
			}
			role := oresponses.EasyInputMessageRoleUser
			switch it.Role {
			case session.RoleSystem:
				role = oresponses.EasyInputMessageRoleSystem
			case session.RoleAssistant:
				role = oresponses.EasyInputMessageRoleAssistant
			}
			out = append(out, oresponses.ResponseInputItemParamOfMessage(text, role))
		case session.ItemKindFunctionCall:
			out = append(out, oresponses.ResponseInputItemParamOfFunctionCall(it.ArgsJSON, it.CallID, it.ToolName))
		case session.ItemKindFunctionOutput:
			out = append(out, oresponses.ResponseInputItemParamOfFunctionCallOutput(it.CallID, it.Output))
		}
	}
	return out
}

func joinContentText(parts []session.ContentPart) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "text" && p.Text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// convertOpenAIOutputItem maps one Responses-API output item into the
// conversation item shape. Unrecognized item types (e.g. web_search_call)
// are dropped; the turn engine only needs message, function_call, and
// reasoning items.
func convertOpenAIOutputItem(item oresponses.ResponseOutputItemUnion) (session.Item, bool) {
	switch strings.TrimSpace(item.Type) {
	case "message":
		parts := make([]session.ContentPart, 0, len(item.Content))
		for _, c := range item.Content {
			if txt := c.Text; txt != "" {
				parts = append(parts, session.ContentPart{Type: "text", Text: txt})
			}
		}
		return session.NewMessage(session.RoleAssistant, parts...), true
	case "function_call":
		return session.NewFunctionCall(item.CallID, item.Name, item.Arguments), true
	case "reasoning":
		parts := make([]session.ReasoningSummaryPart, 0, len(item.Summary))
		for _, s := range item.Summary {
			parts = append(parts, session.ReasoningSummaryPart{Text: s.Text})
		}
		return session.Item{Kind: session.ItemKindReasoningSummary, Summary: parts}, true
	default:
		return session.Item{}, false
	}
}

// classifyOpenAIError maps an openai-go request error into the shared error
// taxonomy. The SDK surfaces API-level failures as *openai.Error, carrying
// StatusCode plus the API's type/code/message fields; the request id is read
// from the X-Request-Id response header.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return &ClassifiedError{Kind: KindTransient, Message: err.Error(), Err: err}
	}

	var requestID string
	if apiErr.Response != nil {
		requestID = apiErr.Response.Header.Get("X-Request-Id")
	}

	ce := &ClassifiedError{
		StatusCode: apiErr.StatusCode,
		Code:       apiErr.Code,
		Type:       apiErr.Type,
		Message:    apiErr.Message,
		RequestID:  requestID,
		Err:        err,
	}

	switch {
	case apiErr.StatusCode == 429 || apiErr.Code == "rate_limit_exceeded":
		ce.Kind = KindRateLimit
		if hint, ok := ParseRetryHint(apiErr.Message); ok {
			ce.RetryAfter = hint
		}
	case apiErr.Code == "model_not_found":
		ce.Kind = KindModelNotFound
	case LooksLikeContextOverflow(apiErr.Type, apiErr.Message):
		ce.Kind = KindContextOverflow
	case apiErr.StatusCode >= 500:
		ce.Kind = KindTransient
	case apiErr.StatusCode >= 400:
		ce.Kind = KindClientError
	default:
		ce.Kind = KindUnknown
	}
	return ce
}
