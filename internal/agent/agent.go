package agent

import (
	"time"

	"toolrepro/internal/llm"
	"toolrepro/internal/tool"
)

// Config describes the scenario a Runner replays.
type Config struct {
	SystemPrompt string
	UserPrompt   string
	Convention   llm.ToolResultConvention
	Temperature  float32
	MaxTokens    int
	Stream       bool // Collect replies through ChatStream instead of Chat
}

// Exchange is the outcome of the first request: the conversation that was
// sent and the model's reply to it.
type Exchange struct {
	Conversation []llm.Message
	Response     *llm.ChatResponse
}

// Assistant returns the reply message, tool calls included.
func (e *Exchange) Assistant() llm.Message {
	return e.Response.Message
}

// ToolCalls returns the calls requested by the model, if any.
func (e *Exchange) ToolCalls() []*llm.ToolCall {
	return e.Response.Message.ToolCalls
}

// ToolOutput pairs a tool call with the text its execution produced.
type ToolOutput struct {
	Call   *llm.ToolCall
	Output string
}

// Report summarises one run of the scenario.
type Report struct {
	Provider     string
	Model        string
	Convention   llm.ToolResultConvention
	Streamed     bool
	ToolCalls    []*llm.ToolCall
	ToolResults  []*tool.CallResult
	FinalContent string
	Empty        bool // FinalContent is "" after a tool round trip
	Turns        int  // Requests sent to the endpoint
	Duration     time.Duration
}
