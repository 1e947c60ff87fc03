package llm

import (
	"fmt"

	"github.com/google/uuid"
)

// CollectStream drains reader and folds it into a single ChatResponse.
// The reader is closed before returning.
func CollectStream(reader StreamReader) (*ChatResponse, error) {
	return CollectStreamFunc(reader, nil)
}

// CollectStreamFunc is CollectStream with onDelta called for every delta
// received before the end of the stream.
func CollectStreamFunc(reader StreamReader, onDelta func(*Delta)) (*ChatResponse, error) {
	defer reader.Close()

	for {
		delta, err := reader.Recv()
		if err != nil {
			return nil, err
		}
		if delta.Done {
			break
		}
		if onDelta != nil {
			onDelta(delta)
		}
	}

	msg, reason := reader.Accumulated()
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}
	if err := ValidateToolCalls(msg.ToolCalls); err != nil {
		return nil, err
	}
	EnsureToolCallIDs(msg.ToolCalls)

	if len(msg.ToolCalls) > 0 {
		reason = StopReasonToolCalls
	}
	if reason == "" {
		reason = StopReasonStop
	}

	return &ChatResponse{Message: msg, StopReason: reason}, nil
}

// EnsureToolCallIDs gives every call without an identifier a synthetic one, so
// the tool-result message answering it can still reference it.
func EnsureToolCallIDs(calls []*ToolCall) {
	for _, tc := range calls {
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
	}
}

// ValidateToolCalls rejects tool calls that cannot be executed at all.
func ValidateToolCalls(calls []*ToolCall) error {
	for i, tc := range calls {
		if tc == nil || tc.Function == nil || tc.Function.Name == "" {
			return fmt.Errorf("%w: tool call #%d has no function name", ErrMalformedResponse, i+1)
		}
	}
	return nil
}
