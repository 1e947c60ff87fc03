package tool

import (
	"context"
	"fmt"
	"time"

	"toolrepro/internal/llm"
)

// EmptyOutputPlaceholder is returned when a tool produces no output.
// This ensures LLM APIs (which require non-empty content) don't fail with 400 errors.
const EmptyOutputPlaceholder = "(Tool executed successfully with no output)"

// Executor runs model-issued tool calls against a registry, one at a time.
type Executor struct {
	registry *Registry
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute runs a single tool call. An unknown tool name fails with an error
// wrapping ErrUnsupportedTool and no result. A tool that reports failure is
// returned as a result with Success=false, not as an error.
func (e *Executor) Execute(ctx context.Context, tc *llm.ToolCall) (*CallResult, error) {
	if tc == nil || tc.Function == nil {
		return nil, fmt.Errorf("%w: empty tool call", ErrUnsupportedTool)
	}

	t, err := e.registry.Get(tc.Function.Name)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	args := tc.Function.Arguments
	if args == "" {
		args = "{}"
	}

	result, err := t.Execute(ctx, []byte(args))
	if err != nil {
		result = &Result{Success: false, Error: err.Error()}
	}

	if result.Success && result.Output == "" {
		result.Output = EmptyOutputPlaceholder
	}

	return &CallResult{
		ToolName:  tc.Function.Name,
		CallID:    tc.ID,
		Params:    []byte(args),
		Result:    result,
		StartTime: startTime,
		EndTime:   time.Now(),
	}, nil
}

// ExecuteAll runs tool calls sequentially, in the order the model issued them,
// stopping at the first unsupported tool.
func (e *Executor) ExecuteAll(ctx context.Context, toolCalls []*llm.ToolCall) ([]*CallResult, error) {
	results := make([]*CallResult, 0, len(toolCalls))

	for _, tc := range toolCalls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := e.Execute(ctx, tc)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, nil
}
