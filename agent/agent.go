// Package agent runs the chat loop: it presents the merged catalog to
// a chat model, turns the model's tool calls into batched dispatches,
// feeds the results back, and stops when the model produces a final
// answer.
package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/registry"
	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "agent")

// DefaultSystemPrompt instructs the model to use tools and keep the
// final answer short.
const DefaultSystemPrompt = "You have access to tools. " +
	"Use them when needed to answer the user's question, " +
	"and return only a concise final answer."

// DefaultMaxTurns caps model round-trips per chat request.
const DefaultMaxTurns = 10

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	// Arguments is the raw JSON arguments string as produced by the model.
	Arguments string
}

// Message is one entry in the chat history.
type Message struct {
	Role    Role
	Content string
	// ToolCalls is set on assistant messages that request tools.
	ToolCalls []ToolCall
	// ToolCallID correlates a tool message with the assistant's request.
	ToolCallID string
}

// ToolDefinition is a tool as presented to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Model is a chat model capable of tool use.
type Model interface {
	GenerateContent(ctx context.Context, messages []Message, defs []ToolDefinition) (*Message, error)
}

// Router is the tool-call surface the agent consumes.
type Router interface {
	Catalog() *registry.Catalog
	DispatchAll(ctx context.Context, reqs []tools.CallRequest) []tools.CallResult
}

// Agent drives the model against the router's catalog.
type Agent struct {
	model  Model
	router Router

	systemPrompt string
	maxTurns     int
}

// New creates an agent with the default prompt and turn cap.
func New(model Model, router Router) *Agent {
	return &Agent{
		model:        model,
		router:       router,
		systemPrompt: DefaultSystemPrompt,
		maxTurns:     DefaultMaxTurns,
	}
}

// WithSystemPrompt overrides the system prompt.
func (a *Agent) WithSystemPrompt(prompt string) *Agent {
	if prompt != "" {
		a.systemPrompt = prompt
	}
	return a
}

// WithMaxTurns overrides the model round-trip cap.
func (a *Agent) WithMaxTurns(maxTurns int) *Agent {
	if maxTurns > 0 {
		a.maxTurns = maxTurns
	}
	return a
}

// Chat runs one user request to completion and returns the model's
// final answer.
func (a *Agent) Chat(ctx context.Context, input string) (string, error) {
	messages := []Message{
		{Role: RoleSystem, Content: a.systemPrompt},
		{Role: RoleUser, Content: input},
	}

	defs := a.definitions()
	for turn := 0; turn < a.maxTurns; turn++ {
		resp, err := a.model.GenerateContent(ctx, messages, defs)
		if err != nil {
			return "", errors.WithMessage(err, "model call failed")
		}
		messages = append(messages, *resp)

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		logger.ContextKV(ctx, xlog.DEBUG,
			"turn", turn,
			"tool_calls", len(resp.ToolCalls),
		)
		messages = append(messages, a.executeToolCalls(ctx, resp.ToolCalls)...)
	}
	return "", errors.Newf("no final answer after %d turns", a.maxTurns)
}

// executeToolCalls dispatches the batch and converts each result into a
// tool message, in the order the model requested the calls.
func (a *Agent) executeToolCalls(ctx context.Context, calls []ToolCall) []Message {
	reqs := make([]tools.CallRequest, len(calls))
	for i, tc := range calls {
		args, err := parseArguments(tc.Arguments)
		if err != nil {
			// dispatch with empty arguments; schema validation turns
			// this into an InvalidArguments result the model can see
			logger.ContextKV(ctx, xlog.WARNING,
				"tool", tc.Name,
				"status", "invalid_arguments_json",
				"err", err.Error(),
			)
		}
		logger.ContextKV(ctx, xlog.DEBUG,
			"tool", tc.Name,
			"input", slices.StringUpto(tc.Arguments, 64),
		)
		reqs[i] = tools.CallRequest{
			CallID:    tc.ID,
			ToolName:  tc.Name,
			Arguments: args,
		}
	}

	results := a.router.DispatchAll(ctx, reqs)
	out := make([]Message, len(results))
	for i, res := range results {
		out[i] = Message{
			Role:       RoleTool,
			ToolCallID: res.CallID,
			Content:    res.String(),
		}
	}
	return out
}

func (a *Agent) definitions() []ToolDefinition {
	descriptors := a.router.Catalog().Descriptors()
	defs := make([]ToolDefinition, 0, len(descriptors))
	for _, d := range descriptors {
		defs = append(defs, ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.InputSchema,
		})
	}
	return defs
}

// parseArguments decodes the model's arguments JSON. Some models
// double-encode arguments as a JSON string; that form is tolerated.
func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}

	var nested string
	if err := json.Unmarshal([]byte(raw), &nested); err == nil {
		if err := json.Unmarshal([]byte(nested), &args); err == nil {
			return args, nil
		}
	}
	return nil, errors.Newf("invalid arguments JSON: %s", raw)
}
