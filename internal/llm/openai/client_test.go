package openai

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"toolrepro/internal/llm"
	"toolrepro/internal/mockserver"
)

var weatherDef = &llm.ToolDefinition{
	Type: "function",
	Function: &llm.FunctionDef{
		Name:        "get_weather",
		Description: "Get the current weather for a location",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{"type": "string"},
			},
			"required": []string{"location"},
		},
	},
}

func startMock(t *testing.T, opts mockserver.Options) (*mockserver.Server, *Client) {
	t.Helper()
	server := mockserver.New(opts)
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	key := opts.APIKey
	if key == "" {
		key = "test-key"
	}
	return server, NewClient(key, "mock-model", Options{BaseURL: srv.URL + "/v1"})
}

func firstTurn() *llm.ChatRequest {
	return &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a weather assistant."},
			{Role: llm.RoleUser, Content: "What's the weather in Paris?"},
		},
		Tools:       []*llm.ToolDefinition{weatherDef},
		Temperature: 0.3,
	}
}

func TestClient_ChatReturnsToolCall(t *testing.T) {
	server, client := startMock(t, mockserver.Options{})

	resp, err := client.Chat(context.Background(), firstTurn())
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if resp.StopReason != llm.StopReasonToolCalls {
		t.Errorf("Expected tool_calls stop reason, got %q", resp.StopReason)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("Expected one tool call, got %d", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Function.Name != "get_weather" || tc.Function.Arguments != `{"location":"Paris"}` {
		t.Errorf("Unexpected tool call: %+v", tc.Function)
	}

	reqs := server.Requests()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(reqs))
	}
	if reqs[0].Model != "mock-model" {
		t.Errorf("Expected model mock-model, got %q", reqs[0].Model)
	}
	if len(reqs[0].Tools) != 1 || reqs[0].Tools[0].Function.Name != "get_weather" {
		t.Errorf("Tool definition not sent: %+v", reqs[0].Tools)
	}
}

func TestClient_ToolResultCarriesCallIDOnTheWire(t *testing.T) {
	server, client := startMock(t, mockserver.Options{})

	first, err := client.Chat(context.Background(), firstTurn())
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	call := first.Message.ToolCalls[0]

	req := firstTurn()
	req.Messages = append(req.Messages, first.Message, llm.NewToolResultMessage(call, "The weather in Paris is sunny, 22°C"))

	second, err := client.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("Second chat failed: %v", err)
	}
	if second.Message.Content != mockserver.DefaultSummary {
		t.Errorf("Expected summary, got %q", second.Message.Content)
	}

	sent := server.Requests()[1].Messages
	if len(sent) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(sent))
	}
	if sent[2].Role != "assistant" || len(sent[2].ToolCalls) != 1 || sent[2].ToolCalls[0].ID != call.ID {
		t.Errorf("Assistant tool-call record not resent: %+v", sent[2])
	}
	if sent[3].Role != "tool" || sent[3].ToolCallID != call.ID {
		t.Errorf("Tool result should reference %q, got %+v", call.ID, sent[3])
	}
}

func TestClient_EmptyContentIsNotAnError(t *testing.T) {
	_, client := startMock(t, mockserver.Options{Behaviour: mockserver.BehaviourEmptyAfterTool})

	first, err := client.Chat(context.Background(), firstTurn())
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	req := firstTurn()
	req.Messages = append(req.Messages, first.Message, llm.NewToolResultMessage(first.Message.ToolCalls[0], "sunny"))

	resp, err := client.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("Empty reply must not be an error: %v", err)
	}
	if resp.Message.Content != "" {
		t.Errorf("Expected empty content, got %q", resp.Message.Content)
	}
	if resp.StopReason != llm.StopReasonStop {
		t.Errorf("Expected stop, got %q", resp.StopReason)
	}
}

func TestClient_AuthenticationError(t *testing.T) {
	server := mockserver.New(mockserver.Options{APIKey: "right"})
	srv := httptest.NewServer(server)
	defer srv.Close()

	client := NewClient("wrong", "mock-model", Options{BaseURL: srv.URL + "/v1"})

	_, err := client.Chat(context.Background(), firstTurn())
	if !errors.Is(err, llm.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication, got %v", err)
	}
	if len(server.Requests()) != 0 {
		t.Error("Rejected request should not be recorded")
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	_, client := startMock(t, mockserver.Options{Behaviour: mockserver.BehaviourMalformed})

	_, err := client.Chat(context.Background(), firstTurn())
	if !errors.Is(err, llm.ErrMalformedResponse) {
		t.Errorf("Expected ErrMalformedResponse, got %v", err)
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Options{}))
	url := srv.URL
	srv.Close()

	client := NewClient("k", "mock-model", Options{BaseURL: url + "/v1"})

	_, err := client.Chat(context.Background(), firstTurn())
	if !errors.Is(err, llm.ErrTransport) {
		t.Errorf("Expected ErrTransport, got %v", err)
	}
}

func TestClient_CancelledContext(t *testing.T) {
	_, client := startMock(t, mockserver.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Chat(ctx, firstTurn())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
}

func TestClient_StreamToolCall(t *testing.T) {
	_, client := startMock(t, mockserver.Options{})

	reader, err := client.ChatStream(context.Background(), firstTurn())
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}

	resp, err := llm.CollectStream(reader)
	if err != nil {
		t.Fatalf("CollectStream failed: %v", err)
	}

	if resp.StopReason != llm.StopReasonToolCalls {
		t.Errorf("Expected tool_calls, got %q", resp.StopReason)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("Expected one tool call, got %d", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID == "" || tc.Function.Name != "get_weather" || tc.Function.Arguments != `{"location":"Paris"}` {
		t.Errorf("Tool call not reassembled: id=%q %+v", tc.ID, tc.Function)
	}
}

func TestClient_StreamEmptyAfterTool(t *testing.T) {
	_, client := startMock(t, mockserver.Options{Behaviour: mockserver.BehaviourEmptyAfterTool})

	call := &llm.ToolCall{ID: "call_1", Type: "function", Function: &llm.FunctionCall{Name: "get_weather", Arguments: `{"location":"Paris"}`}}
	req := firstTurn()
	req.Messages = append(req.Messages,
		llm.Message{Role: llm.RoleAssistant, ToolCalls: []*llm.ToolCall{call}},
		llm.NewToolResultMessage(call, "sunny"),
	)

	reader, err := client.ChatStream(context.Background(), req)
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	resp, err := llm.CollectStream(reader)
	if err != nil {
		t.Fatalf("CollectStream failed: %v", err)
	}
	if resp.Message.Content != "" {
		t.Errorf("Expected empty content, got %q", resp.Message.Content)
	}
}

func TestClient_ProviderAndModel(t *testing.T) {
	client := NewClient("k", "openai/gpt-oss-120b", Options{})
	if client.Provider() != "go-openai" {
		t.Errorf("Unexpected provider %q", client.Provider())
	}
	if client.Model() != "openai/gpt-oss-120b" {
		t.Errorf("Unexpected model %q", client.Model())
	}
}
