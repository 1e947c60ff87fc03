package agent

import (
	"time"

	"toolrepro/internal/logger"
)

// ExecutionContext tracks the state of a single run and provides logging utilities
type ExecutionContext struct {
	Logger        *logger.Logger
	StartTime     time.Time
	Requests      int
	ToolCallCount int
}

// NewExecutionContext creates a new execution context with the given logger
func NewExecutionContext(log *logger.Logger) *ExecutionContext {
	if log == nil {
		log = logger.Discard()
	}
	return &ExecutionContext{
		Logger:    log,
		StartTime: time.Now(),
	}
}

// LogRequest counts and logs an outgoing chat request
func (ctx *ExecutionContext) LogRequest(messages, tools int) {
	ctx.Requests++
	ctx.Logger.Info("Request %d: %d message(s), %d tool(s)", ctx.Requests, messages, tools)
}

// LogToolCall logs a tool call with its parameters
func (ctx *ExecutionContext) LogToolCall(toolName, callID, params string) {
	ctx.ToolCallCount++
	ctx.Logger.ToolCall(toolName, callID, params)
}

// LogToolResult logs a tool execution result
func (ctx *ExecutionContext) LogToolResult(toolName string, success bool, output string, duration time.Duration) {
	ctx.Logger.ToolResult(toolName, success, output, duration)
}

// LogResponse logs the final reply, warning when it is empty
func (ctx *ExecutionContext) LogResponse(convention, content string) {
	ctx.Logger.FinalResponse(convention, content)
	if content == "" {
		ctx.Logger.Warn("Endpoint returned an empty final response")
	}
}

// Elapsed reports the time since the run started
func (ctx *ExecutionContext) Elapsed() time.Duration {
	return time.Since(ctx.StartTime)
}
