package llm

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	Role       Role
	Reason     string
	Content    string
	ToolCalls  []*ToolCall
	ToolCallID string
	Name       string
	Timestamp  time.Time
}

type ToolCall struct {
	ID       string
	Type     string
	Function *FunctionCall
}

type FunctionCall struct {
	Name      string
	Arguments string
}

type StopReason string

const (
	StopReasonStop      StopReason = "stop"
	StopReasonLength    StopReason = "length"
	StopReasonToolCalls StopReason = "tool_calls"
)

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ToolResultConvention selects how a tool result is handed back to the model.
type ToolResultConvention string

const (
	// ConventionToolMessage sends a role=tool message tagged with the call id.
	ConventionToolMessage ToolResultConvention = "tool"
	// ConventionUserMessage sends the result as plain user text. Endpoints that
	// drop tagged tool results usually still answer this one.
	ConventionUserMessage ToolResultConvention = "user"
)

// Conventions lists every supported convention in the order Compare runs them.
var Conventions = []ToolResultConvention{ConventionToolMessage, ConventionUserMessage}

func (c ToolResultConvention) Valid() bool {
	return c == ConventionToolMessage || c == ConventionUserMessage
}

// NewToolResultMessage builds the tagged tool-result message answering call.
func NewToolResultMessage(call *ToolCall, result string) Message {
	return Message{
		Role:       RoleTool,
		Content:    result,
		ToolCallID: call.ID,
		Name:       call.Function.Name,
		Timestamp:  time.Now(),
	}
}

// NewUserToolResultMessage builds the untagged user-role variant of a tool result.
func NewUserToolResultMessage(call *ToolCall, result string) Message {
	return Message{
		Role:      RoleUser,
		Content:   fmt.Sprintf("Tool '%s' returned:\n%s", call.Function.Name, result),
		Timestamp: time.Now(),
	}
}

// ResultMessage builds the tool-result message for call using convention c.
func (c ToolResultConvention) ResultMessage(call *ToolCall, result string) Message {
	if c == ConventionUserMessage {
		return NewUserToolResultMessage(call, result)
	}
	return NewToolResultMessage(call, result)
}
