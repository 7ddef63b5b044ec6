package llm

import (
	"context"

	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

const (
	ToolChoiceAuto = "auto"
	ToolChoiceNone = "none"
)

// Message is one entry of a chat transcript. ToolCalls is set on assistant
// messages that request tools; ToolCallID ties a tool message to its request.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a single tool invocation requested by the model. Arguments is
// the raw JSON object the model produced.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition declares a tool the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

type Request struct {
	Messages   []Message
	Tools      []ToolDefinition
	ToolChoice string
}

// Response is either a text answer or a batch of tool calls.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Client is the model API used by the assistant.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
