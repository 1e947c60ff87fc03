package agent

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"toolrepro/internal/llm"
	"toolrepro/internal/llm/openai"
	"toolrepro/internal/mockserver"
	"toolrepro/internal/tool"
	"toolrepro/internal/tool/builtin"
)

// fakeClient replays scripted responses and records every request.
type fakeClient struct {
	responses []*llm.ChatResponse
	err       error
	requests  []*llm.ChatRequest
}

func (f *fakeClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeClient) ChatStream(ctx context.Context, req *llm.ChatRequest) (llm.StreamReader, error) {
	return nil, errors.New("streaming not scripted")
}

func (f *fakeClient) Provider() string { return "fake" }
func (f *fakeClient) Model() string    { return "fake-model" }

func weatherRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	registry := tool.NewRegistry()
	if err := registry.Register(builtin.NewWeatherTool()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return registry
}

func scenario(convention llm.ToolResultConvention) Config {
	return Config{
		SystemPrompt: "You are a weather assistant.",
		UserPrompt:   "What's the weather like in Paris today?",
		Convention:   convention,
		Temperature:  0.3,
	}
}

// newMockRunner wires a runner to an in-process mock endpoint through the go-openai backend.
func newMockRunner(t *testing.T, opts mockserver.Options, cfg Config) (*mockserver.Server, *Runner) {
	t.Helper()
	server := mockserver.New(opts)
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	client := openai.NewClient("test-key", "mock-model", openai.Options{BaseURL: srv.URL + "/v1"})
	return server, NewRunner(client, weatherRegistry(t), cfg, nil)
}

func TestRunner_RunScenarioRequestsTool(t *testing.T) {
	server, runner := newMockRunner(t, mockserver.Options{}, scenario(llm.ConventionToolMessage))

	exchange, err := runner.RunScenario(context.Background())
	if err != nil {
		t.Fatalf("RunScenario failed: %v", err)
	}

	if len(exchange.Conversation) != 2 {
		t.Errorf("Expected system and user messages, got %d", len(exchange.Conversation))
	}
	calls := exchange.ToolCalls()
	if len(calls) != 1 || calls[0].Function.Name != "get_weather" {
		t.Fatalf("Expected one get_weather call, got %+v", calls)
	}
	if calls[0].ID == "" {
		t.Error("Tool call should carry an id")
	}

	reqs := server.Requests()
	if len(reqs) != 1 || len(reqs[0].Tools) != 1 {
		t.Errorf("Expected one request with the weather tool attached, got %+v", reqs)
	}
}

func TestRunner_ExecuteTool(t *testing.T) {
	runner := NewRunner(&fakeClient{}, weatherRegistry(t), scenario(llm.ConventionToolMessage), nil)

	call := &llm.ToolCall{ID: "call_1", Type: "function", Function: &llm.FunctionCall{
		Name:      "get_weather",
		Arguments: `{"location":"Paris"}`,
	}}

	out, err := runner.ExecuteTool(context.Background(), call)
	if err != nil {
		t.Fatalf("ExecuteTool failed: %v", err)
	}
	if out != "The weather in Paris is sunny, 22°C" {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestRunner_ExecuteToolUnsupported(t *testing.T) {
	runner := NewRunner(&fakeClient{}, weatherRegistry(t), scenario(llm.ConventionToolMessage), nil)

	call := &llm.ToolCall{ID: "call_1", Type: "function", Function: &llm.FunctionCall{Name: "get_stock_price", Arguments: `{}`}}

	out, err := runner.ExecuteTool(context.Background(), call)
	if !errors.Is(err, tool.ErrUnsupportedTool) {
		t.Fatalf("Expected ErrUnsupportedTool, got %v", err)
	}
	if out != "" {
		t.Errorf("Unsupported tool must not produce output, got %q", out)
	}
}

func TestRunner_ExecuteToolFailure(t *testing.T) {
	runner := NewRunner(&fakeClient{}, weatherRegistry(t), scenario(llm.ConventionToolMessage), nil)

	call := &llm.ToolCall{ID: "call_1", Type: "function", Function: &llm.FunctionCall{Name: "get_weather", Arguments: `{"location":""}`}}

	if _, err := runner.ExecuteTool(context.Background(), call); err == nil {
		t.Error("Expected error for a failed tool result")
	}
}

func TestRunner_RunSummary(t *testing.T) {
	server, runner := newMockRunner(t, mockserver.Options{}, scenario(llm.ConventionToolMessage))

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.FinalContent != mockserver.DefaultSummary {
		t.Errorf("Expected summary, got %q", report.FinalContent)
	}
	if report.Empty {
		t.Error("Summary reply should not be flagged empty")
	}
	if report.Turns != 2 || len(server.Requests()) != 2 {
		t.Errorf("Expected exactly 2 requests, got %d (server saw %d)", report.Turns, len(server.Requests()))
	}
	if len(report.ToolResults) != 1 || report.ToolResults[0].Result.Output != "The weather in Paris is sunny, 22°C" {
		t.Errorf("Unexpected tool results: %+v", report.ToolResults)
	}
}

func TestRunner_RunEmptyAfterTool(t *testing.T) {
	server, runner := newMockRunner(t,
		mockserver.Options{Behaviour: mockserver.BehaviourEmptyAfterTool},
		scenario(llm.ConventionToolMessage))

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Empty reply must not be an error: %v", err)
	}
	if report.FinalContent != "" || !report.Empty {
		t.Errorf("Expected empty final content, got %q (empty=%v)", report.FinalContent, report.Empty)
	}

	reqs := server.Requests()
	if len(reqs) != 2 {
		t.Fatalf("Expected exactly 2 requests, got %d", len(reqs))
	}

	second := reqs[1].Messages
	if len(second) != 4 {
		t.Fatalf("Expected system, user, assistant and tool messages, got %d", len(second))
	}
	callID := report.ToolCalls[0].ID
	if second[2].Role != "assistant" || len(second[2].ToolCalls) != 1 || second[2].ToolCalls[0].ID != callID {
		t.Errorf("Assistant tool-call record missing or altered: %+v", second[2])
	}
	if second[3].Role != "tool" || second[3].ToolCallID != callID {
		t.Errorf("Tool result should reference %q, got %+v", callID, second[3])
	}
	if second[3].Content != "The weather in Paris is sunny, 22°C" {
		t.Errorf("Unexpected tool result content: %q", second[3].Content)
	}
}

func TestRunner_RunUserConvention(t *testing.T) {
	server, runner := newMockRunner(t,
		mockserver.Options{Behaviour: mockserver.BehaviourEmptyAfterTool},
		scenario(llm.ConventionUserMessage))

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.FinalContent == "" || report.Empty {
		t.Error("User-message workaround should get a non-empty reply")
	}

	second := server.Requests()[1].Messages
	last := second[len(second)-1]
	if last.Role != "user" || last.Content != "Tool 'get_weather' returned:\nThe weather in Paris is sunny, 22°C" {
		t.Errorf("Unexpected workaround message: %+v", last)
	}
	for _, msg := range second {
		if msg.Role == "tool" || len(msg.ToolCalls) > 0 {
			t.Errorf("User convention must not send tool-call records, got %+v", msg)
		}
	}
}

func TestRunner_RunStreaming(t *testing.T) {
	cfg := scenario(llm.ConventionToolMessage)
	cfg.Stream = true
	server, runner := newMockRunner(t, mockserver.Options{Behaviour: mockserver.BehaviourEmptyAfterTool}, cfg)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.Streamed || !report.Empty {
		t.Errorf("Expected a streamed empty reply, got %+v", report)
	}
	if len(server.Requests()) != 2 {
		t.Errorf("Expected 2 requests, got %d", len(server.Requests()))
	}
}

func TestRunner_RunUnsupportedToolAborts(t *testing.T) {
	client := &fakeClient{responses: []*llm.ChatResponse{{
		Message: llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []*llm.ToolCall{{ID: "call_x", Type: "function", Function: &llm.FunctionCall{
				Name: "get_stock_price", Arguments: `{"symbol":"ACME"}`,
			}}},
		},
		StopReason: llm.StopReasonToolCalls,
	}}}
	runner := NewRunner(client, weatherRegistry(t), scenario(llm.ConventionToolMessage), nil)

	_, err := runner.Run(context.Background())
	if !errors.Is(err, tool.ErrUnsupportedTool) {
		t.Fatalf("Expected ErrUnsupportedTool, got %v", err)
	}
	if len(client.requests) != 1 {
		t.Errorf("No follow-up should be sent, got %d requests", len(client.requests))
	}
}

func TestRunner_RunDirectReply(t *testing.T) {
	client := &fakeClient{responses: []*llm.ChatResponse{{
		Message:    llm.Message{Role: llm.RoleAssistant, Content: "It is sunny."},
		StopReason: llm.StopReasonStop,
	}}}
	runner := NewRunner(client, weatherRegistry(t), scenario(llm.ConventionToolMessage), nil)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Turns != 1 || report.FinalContent != "It is sunny." || report.Empty {
		t.Errorf("Unexpected report: %+v", report)
	}
}

func TestRunner_RunSurfacesErrors(t *testing.T) {
	_, runner := newMockRunner(t, mockserver.Options{APIKey: "other-key"}, scenario(llm.ConventionToolMessage))
	if _, err := runner.Run(context.Background()); !errors.Is(err, llm.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication, got %v", err)
	}

	client := &fakeClient{err: llm.ErrTransport}
	runner = NewRunner(client, weatherRegistry(t), scenario(llm.ConventionToolMessage), nil)
	if _, err := runner.Run(context.Background()); !errors.Is(err, llm.ErrTransport) {
		t.Errorf("Expected ErrTransport, got %v", err)
	}
	if len(client.requests) != 1 {
		t.Errorf("Failures must not be retried, got %d requests", len(client.requests))
	}
}

func TestRunner_SendToolResultRequiresResults(t *testing.T) {
	client := &fakeClient{}
	runner := NewRunner(client, weatherRegistry(t), scenario(llm.ConventionToolMessage), nil)

	if _, err := runner.SendToolResult(context.Background(), nil, llm.Message{Role: llm.RoleAssistant}, nil); err == nil {
		t.Error("Expected error when there is nothing to send")
	}
	if len(client.requests) != 0 {
		t.Error("Nothing should be sent without results")
	}
}

func TestRunner_Compare(t *testing.T) {
	server, runner := newMockRunner(t,
		mockserver.Options{Behaviour: mockserver.BehaviourEmptyAfterTool},
		scenario(llm.ConventionToolMessage))

	reports, err := runner.Compare(context.Background())
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("Expected one report per convention, got %d", len(reports))
	}

	if reports[0].Convention != llm.ConventionToolMessage || !reports[0].Empty {
		t.Errorf("Tool convention should reproduce the empty reply: %+v", reports[0])
	}
	if reports[1].Convention != llm.ConventionUserMessage || reports[1].FinalContent != mockserver.DefaultSummary {
		t.Errorf("User convention should get the summary: %+v", reports[1])
	}
	if len(server.Requests()) != 4 {
		t.Errorf("Expected 4 requests, got %d", len(server.Requests()))
	}
	if runner.Convention() != llm.ConventionToolMessage {
		t.Error("Compare must not change the runner's own convention")
	}
}
