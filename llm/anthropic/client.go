// Package anthropic implements llm.Client on top of Anthropic's Claude
// Messages API, translating the engine's flat Request/Response shape into
// github.com/anthropics/anthropic-sdk-go calls and classifying failures into
// llm.ProviderError for the retry policy in §4.3.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentloom/orchestrator/llm"
)

const providerName = "anthropic"

type (
	// MessagesClient captures the subset of the Anthropic SDK used by the
	// adapter, so tests can substitute a fake in place of *sdk.MessageService.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	}

	// Options configures defaults applied when a Request leaves a field zero.
	Options struct {
		DefaultModel string
		MaxTokens    int
		Temperature  float64
	}

	// Client implements llm.Client against the Anthropic Messages API.
	Client struct {
		msg          MessagesClient
		defaultModel string
		maxTokens    int
		temperature  float64
	}
)

// New builds a Client from an already-configured Anthropic Messages client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	return &Client{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// NewFromAPIKey builds a Client reading credentials from apiKey, using the
// SDK's default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, Options{DefaultModel: defaultModel})
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return llm.Response{}, llm.NewProviderError(providerName, "complete", 0, llm.KindInvalidRequest, "", err.Error(), "", err)
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return llm.Response{}, classifyError(err)
	}
	return translateResponse(msg), nil
}

func (c *Client) prepareRequest(req llm.Request) (sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, errors.New("messages are required")
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens <= 0 {
		return sdk.MessageNewParams{}, errors.New("max_tokens must be positive")
	}

	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if temp := req.Temperature; temp > 0 {
		params.Temperature = sdk.Float(temp)
	} else if c.temperature > 0 {
		params.Temperature = sdk.Float(c.temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return sdk.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func encodeMessages(msgs []llm.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Text)))
		case llm.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Text))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if len(tc.Args) > 0 {
					if err := json.Unmarshal(tc.Args, &input); err != nil {
						return nil, fmt.Errorf("tool call %s: decode args: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			// system messages are carried on Request.System, not as a turn
		}
	}
	return out, nil
}

func encodeTools(defs []llm.ToolDef) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema, err := decodeSchema(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %q: schema: %w", def.Name, err)
		}
		tool := sdk.ToolParam{
			Name:        def.Name,
			Description: sdk.String(def.Description),
			InputSchema: schema,
		}
		out = append(out, sdk.ToolUnionParam{OfTool: &tool})
	}
	return out, nil
}

func decodeSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func translateResponse(msg *sdk.Message) llm.Response {
	resp := llm.Response{
		TokensOut: int(msg.Usage.OutputTokens),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: json.RawMessage(block.Input),
			})
		}
	}
	switch msg.StopReason {
	case sdk.StopReasonToolUse:
		resp.FinishReason = llm.FinishToolCalls
	case sdk.StopReasonMaxTokens:
		resp.FinishReason = llm.FinishLength
	default:
		resp.FinishReason = llm.FinishStop
	}
	return resp
}

// classifyError maps an Anthropic SDK error into a llm.ProviderError. The SDK
// surfaces HTTP failures as *sdk.Error carrying the response status code;
// anything else (context cancellation, transport failure) is treated as
// Unavailable since it carries no evidence the request itself was rejected.
func classifyError(err error) *llm.ProviderError {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		kind := kindForStatus(apiErr.StatusCode)
		return llm.NewProviderError(providerName, "complete", apiErr.StatusCode, kind, "", apiErr.Error(), apiErr.RequestID, err)
	}
	return llm.NewProviderError(providerName, "complete", 0, llm.KindUnavailable, "", err.Error(), "", err)
}

func kindForStatus(status int) llm.ErrorKind {
	switch {
	case status == 401 || status == 403:
		return llm.KindAuth
	case status == 429:
		return llm.KindRateLimited
	case status == 413 || status == 422:
		return llm.KindContextLength
	case status >= 400 && status < 500:
		return llm.KindInvalidRequest
	case status >= 500:
		return llm.KindUnavailable
	default:
		return llm.KindUnknown
	}
}
