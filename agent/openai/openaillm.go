// Package openai adapts the OpenAI chat completions API to the agent
// model contract.
package openai

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/agent"
	"github.com/effective-security/x/values"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is used when the config does not name one.
const DefaultModel = "gpt-4o-mini"

// Config for the OpenAI chat model.
type Config struct {
	// Model is the model name, e.g. gpt-4o-mini.
	Model string
	// APIKey is the bearer token for the API.
	APIKey string
	// BaseURL overrides the API endpoint, for proxies and compatible
	// backends.
	BaseURL string
}

// Model implements agent.Model over the OpenAI API.
type Model struct {
	client openai.Client
	model  string
}

// New creates an OpenAI chat model.
func New(cfg Config) *Model {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Model{
		client: openai.NewClient(opts...),
		model:  values.StringsCoalesce(cfg.Model, DefaultModel),
	}
}

// GenerateContent sends the chat history and tool definitions, and
// returns the assistant's reply.
func (m *Model) GenerateContent(ctx context.Context, messages []agent.Message, defs []agent.ToolDefinition) (*agent.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.model),
		Messages: convertMessages(messages),
	}
	if len(defs) > 0 {
		params.Tools = convertTools(defs)
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.WithMessage(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	out := &agent.Message{
		Role:    agent.RoleAssistant,
		Content: choice.Message.Content,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, agent.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func convertMessages(messages []agent.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case agent.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case agent.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case agent.RoleAssistant:
			am := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				am.Content.OfArrayOfContentParts = append(am.Content.OfArrayOfContentParts,
					openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion{
						OfText: &openai.ChatCompletionContentPartTextParam{Text: msg.Content},
					})
			}
			for _, tc := range msg.ToolCalls {
				am.ToolCalls = append(am.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &am})
		case agent.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return out
}

func convertTools(defs []agent.ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  openai.FunctionParameters(d.Parameters),
				Strict:      openai.Bool(false),
			},
		})
	}
	return out
}

var _ agent.Model = (*Model)(nil)
