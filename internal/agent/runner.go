package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"toolrepro/internal/llm"
	"toolrepro/internal/logger"
	"toolrepro/internal/tool"
)

// Runner replays the get_weather scenario against one endpoint: a single
// tool-enabled request, local execution of the requested tools, and one
// follow-up carrying the results. A Runner is not safe for concurrent use.
type Runner struct {
	llmClient    llm.Client
	toolRegistry *tool.Registry
	executor     *tool.Executor
	config       Config
	log          *logger.Logger
	exec         *ExecutionContext
}

func NewRunner(client llm.Client, registry *tool.Registry, cfg Config, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.Convention == "" {
		cfg.Convention = llm.ConventionToolMessage
	}

	return &Runner{
		llmClient:    client,
		toolRegistry: registry,
		executor:     tool.NewExecutor(registry),
		config:       cfg,
		log:          log,
	}
}

// Convention returns the tool-result convention this runner uses.
func (r *Runner) Convention() llm.ToolResultConvention {
	return r.config.Convention
}

// WithConvention returns a runner sharing client, registry and logger but
// sending tool results with convention c.
func (r *Runner) WithConvention(c llm.ToolResultConvention) *Runner {
	cfg := r.config
	cfg.Convention = c
	return NewRunner(r.llmClient, r.toolRegistry, cfg, r.log)
}

// RunScenario sends the system and user prompts with every registered tool
// attached and returns what the model answered.
func (r *Runner) RunScenario(ctx context.Context) (*Exchange, error) {
	conversation := make([]llm.Message, 0, 2)
	if r.config.SystemPrompt != "" {
		conversation = append(conversation, llm.Message{
			Role:      llm.RoleSystem,
			Content:   r.config.SystemPrompt,
			Timestamp: time.Now(),
		})
	}
	conversation = append(conversation, llm.Message{
		Role:      llm.RoleUser,
		Content:   r.config.UserPrompt,
		Timestamp: time.Now(),
	})

	resp, err := r.chat(ctx, conversation)
	if err != nil {
		return nil, err
	}

	if n := len(resp.Message.ToolCalls); n > 0 {
		r.log.Info("Model requested %d tool call(s)", n)
	} else {
		r.log.Info("Model answered directly without calling a tool")
	}

	return &Exchange{Conversation: conversation, Response: resp}, nil
}

// ExecuteTool runs call against the registry and returns its output. An
// unknown tool fails with tool.ErrUnsupportedTool; a tool reporting failure
// is returned as an error too.
func (r *Runner) ExecuteTool(ctx context.Context, call *llm.ToolCall) (string, error) {
	result, err := r.executeTool(ctx, call)
	if err != nil {
		return "", err
	}
	return result.Result.Output, nil
}

func (r *Runner) executeTool(ctx context.Context, call *llm.ToolCall) (*tool.CallResult, error) {
	execCtx := r.execution()
	if call != nil && call.Function != nil {
		execCtx.LogToolCall(call.Function.Name, call.ID, call.Function.Arguments)
	}

	result, err := r.executor.Execute(ctx, call)
	if err != nil {
		r.log.Error("Tool call rejected: %v", err)
		return nil, err
	}

	output := result.Result.Output
	if !result.Result.Success {
		output = result.Result.Error
	}
	execCtx.LogToolResult(result.ToolName, result.Result.Success, output, result.Duration())

	if !result.Result.Success {
		return result, fmt.Errorf("tool %s failed: %s", result.ToolName, result.Result.Error)
	}
	return result, nil
}

// SendToolResult extends conversation with the assistant's tool-call message
// and one result message per output, re-sends it, and returns the final
// content verbatim. An empty reply is returned as "" with no error.
//
// With the user convention the assistant record is left out: the results
// travel as plain user text and nothing refers to the original call ids.
func (r *Runner) SendToolResult(ctx context.Context, conversation []llm.Message, assistant llm.Message, results []ToolOutput) (string, error) {
	resp, err := r.sendToolResult(ctx, conversation, assistant, results)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func (r *Runner) sendToolResult(ctx context.Context, conversation []llm.Message, assistant llm.Message, results []ToolOutput) (*llm.ChatResponse, error) {
	if len(results) == 0 {
		return nil, errors.New("no tool results to send")
	}

	messages := make([]llm.Message, 0, len(conversation)+len(results)+1)
	messages = append(messages, conversation...)
	if r.config.Convention == llm.ConventionToolMessage {
		messages = append(messages, assistant)
	}
	for _, res := range results {
		if res.Call == nil || res.Call.Function == nil {
			return nil, fmt.Errorf("%w: result without a tool call", tool.ErrUnsupportedTool)
		}
		messages = append(messages, r.config.Convention.ResultMessage(res.Call, res.Output))
	}

	r.log.Debug("Sending %d tool result(s) as %q messages", len(results), r.config.Convention)
	return r.chat(ctx, messages)
}

// Run performs the whole scenario once and reports the outcome. Any failure
// aborts the run; an empty final reply does not.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.exec = NewExecutionContext(r.log)
	defer func() { r.exec = nil }()
	execCtx := r.exec

	execCtx.Logger.SessionStart(
		fmt.Sprintf("Tool round trip via %s", r.llmClient.Provider()),
		fmt.Sprintf("model: %s | convention: %s", r.llmClient.Model(), r.config.Convention),
	)

	report := &Report{
		Provider:   r.llmClient.Provider(),
		Model:      r.llmClient.Model(),
		Convention: r.config.Convention,
		Streamed:   r.config.Stream,
	}

	exchange, err := r.RunScenario(ctx)
	if err != nil {
		return nil, err
	}

	calls := exchange.ToolCalls()
	report.ToolCalls = calls

	final := exchange.Response
	if len(calls) > 0 {
		outputs := make([]ToolOutput, 0, len(calls))
		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			result, err := r.executeTool(ctx, call)
			if err != nil {
				return nil, err
			}
			report.ToolResults = append(report.ToolResults, result)
			outputs = append(outputs, ToolOutput{Call: call, Output: result.Result.Output})
		}

		final, err = r.sendToolResult(ctx, exchange.Conversation, exchange.Assistant(), outputs)
		if err != nil {
			return nil, err
		}

		if len(final.Message.ToolCalls) > 0 {
			// Only one round trip is replayed; further calls are reported, not run.
			r.log.Warn("Model requested %d more tool call(s) after the results; not executing them", len(final.Message.ToolCalls))
		}
	}

	report.FinalContent = final.Message.Content
	report.Empty = len(calls) > 0 && final.Message.Content == ""
	report.Turns = execCtx.Requests
	report.Duration = execCtx.Elapsed()

	execCtx.LogResponse(string(r.config.Convention), report.FinalContent)
	execCtx.Logger.SessionEnd(report.Duration, execCtx.ToolCallCount, report.Empty)

	return report, nil
}

// Compare runs the scenario once per tool-result convention, in
// llm.Conventions order, so both behaviours can be read side by side.
func (r *Runner) Compare(ctx context.Context) ([]*Report, error) {
	reports := make([]*Report, 0, len(llm.Conventions))
	for _, convention := range llm.Conventions {
		report, err := r.WithConvention(convention).Run(ctx)
		if err != nil {
			return reports, fmt.Errorf("convention %s: %w", convention, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (r *Runner) chat(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error) {
	req := &llm.ChatRequest{
		Messages:    messages,
		Tools:       r.toolRegistry.GetToolDefinitions(),
		Temperature: r.config.Temperature,
		MaxTokens:   r.config.MaxTokens,
	}
	r.execution().LogRequest(len(req.Messages), len(req.Tools))

	var (
		resp *llm.ChatResponse
		err  error
	)
	if r.config.Stream {
		var reader llm.StreamReader
		reader, err = r.llmClient.ChatStream(ctx, req)
		if err == nil {
			chunks := 0
			resp, err = llm.CollectStreamFunc(reader, func(d *llm.Delta) {
				chunks++
				if d.Content != "" || len(d.ToolCalls) > 0 {
					r.log.Debug("Delta %d: content=%q tool_calls=%d", chunks, d.Content, len(d.ToolCalls))
				}
			})
			r.log.Debug("Stream closed after %d chunk(s)", chunks)
		}
	} else {
		resp, err = r.llmClient.Chat(ctx, req)
	}
	if err != nil {
		r.log.Error("LLM call failed: %v", err)
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}

	r.log.Debug("Response: stop=%s content=%q tool_calls=%d", resp.StopReason, resp.Message.Content, len(resp.Message.ToolCalls))
	return resp, nil
}

// execution returns the context of the current Run, or a throwaway one when
// an operation is called on its own.
func (r *Runner) execution() *ExecutionContext {
	if r.exec == nil {
		return NewExecutionContext(r.log)
	}
	return r.exec
}
