package llm

import (
	"errors"
	"strings"
	"testing"
)

func weatherCall(id string) *ToolCall {
	return &ToolCall{
		ID:   id,
		Type: "function",
		Function: &FunctionCall{
			Name:      "get_weather",
			Arguments: `{"location":"Paris"}`,
		},
	}
}

func TestNewToolResultMessage_KeepsCallID(t *testing.T) {
	call := weatherCall("call_abc123")

	msg := NewToolResultMessage(call, "The weather in Paris is sunny, 22°C")

	if msg.Role != RoleTool {
		t.Errorf("Expected role %q, got %q", RoleTool, msg.Role)
	}
	if msg.ToolCallID != call.ID {
		t.Errorf("Expected ToolCallID %q, got %q", call.ID, msg.ToolCallID)
	}
	if msg.Name != "get_weather" {
		t.Errorf("Expected name get_weather, got %q", msg.Name)
	}
	if msg.Content != "The weather in Paris is sunny, 22°C" {
		t.Errorf("Unexpected content: %q", msg.Content)
	}
}

func TestNewUserToolResultMessage_PlainText(t *testing.T) {
	msg := NewUserToolResultMessage(weatherCall("call_1"), "sunny")

	if msg.Role != RoleUser {
		t.Errorf("Expected role %q, got %q", RoleUser, msg.Role)
	}
	if msg.ToolCallID != "" {
		t.Errorf("User variant must not carry a call id, got %q", msg.ToolCallID)
	}
	if msg.Content != "Tool 'get_weather' returned:\nsunny" {
		t.Errorf("Unexpected content: %q", msg.Content)
	}
}

func TestConvention_ResultMessage(t *testing.T) {
	call := weatherCall("call_xyz")

	tagged := ConventionToolMessage.ResultMessage(call, "r")
	if tagged.Role != RoleTool || tagged.ToolCallID != "call_xyz" {
		t.Errorf("tool convention built %+v", tagged)
	}

	plain := ConventionUserMessage.ResultMessage(call, "r")
	if plain.Role != RoleUser || !strings.HasPrefix(plain.Content, "Tool 'get_weather'") {
		t.Errorf("user convention built %+v", plain)
	}
}

func TestConvention_Valid(t *testing.T) {
	for _, c := range Conventions {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	if ToolResultConvention("human").Valid() {
		t.Error("unknown convention should be invalid")
	}
}

func TestEnsureToolCallIDs(t *testing.T) {
	calls := []*ToolCall{weatherCall(""), weatherCall("call_keep")}

	EnsureToolCallIDs(calls)

	if !strings.HasPrefix(calls[0].ID, "call_") || len(calls[0].ID) <= len("call_") {
		t.Errorf("Expected synthetic id, got %q", calls[0].ID)
	}
	if calls[1].ID != "call_keep" {
		t.Errorf("Existing id must be kept, got %q", calls[1].ID)
	}
}

func TestValidateToolCalls(t *testing.T) {
	if err := ValidateToolCalls([]*ToolCall{weatherCall("a")}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	err := ValidateToolCalls([]*ToolCall{{ID: "b", Function: &FunctionCall{}}})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("Expected ErrMalformedResponse, got %v", err)
	}
}
