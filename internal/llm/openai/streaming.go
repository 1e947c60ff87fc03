package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"toolrepro/internal/llm"

	openai "github.com/sashabaranov/go-openai"
)

type StreamReader struct {
	stream         *openai.ChatCompletionStream
	accumulatedMsg llm.Message
	stopReason     llm.StopReason
	toolCallsMap   map[int]*llm.ToolCall // Track tool calls by index
}

func (c *Client) ChatStream(ctx context.Context, req *llm.ChatRequest) (llm.StreamReader, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		return nil, classifyError(err)
	}

	return &StreamReader{
		stream:         stream,
		accumulatedMsg: llm.Message{Role: llm.RoleAssistant},
		toolCallsMap:   make(map[int]*llm.ToolCall),
	}, nil
}

func (s *StreamReader) Recv() (*llm.Delta, error) {
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return &llm.Delta{Done: true}, nil
	}
	if err != nil {
		return nil, classifyError(err)
	}

	// Some servers send a trailing usage-only chunk.
	if len(resp.Choices) == 0 {
		if resp.Usage != nil {
			return &llm.Delta{}, nil
		}
		return nil, fmt.Errorf("%w: no choices in stream chunk", llm.ErrMalformedResponse)
	}

	delta := resp.Choices[0].Delta

	result := &llm.Delta{
		Role:    llm.Role(delta.Role),
		Reason:  delta.ReasoningContent,
		Content: delta.Content,
	}

	s.accumulatedMsg.Reason += delta.ReasoningContent
	s.accumulatedMsg.Content += delta.Content

	// Tool calls arrive in fragments keyed by index
	for _, tc := range delta.ToolCalls {
		index := 0
		if tc.Index != nil {
			index = *tc.Index
		}

		toolCall, exists := s.toolCallsMap[index]
		if !exists {
			toolCall = &llm.ToolCall{
				Type:     string(tc.Type),
				Function: &llm.FunctionCall{},
			}
			s.toolCallsMap[index] = toolCall
		}

		toolCall.Function.Name += tc.Function.Name
		toolCall.Function.Arguments += tc.Function.Arguments
		if tc.ID != "" {
			toolCall.ID = tc.ID
		}

		result.ToolCalls = append(result.ToolCalls, toolCall)
	}

	if reason := resp.Choices[0].FinishReason; reason != "" {
		s.stopReason = llm.StopReason(reason)
	}

	return result, nil
}

// Accumulated returns the message assembled so far, tool calls in index order.
func (s *StreamReader) Accumulated() (llm.Message, llm.StopReason) {
	msg := s.accumulatedMsg
	if len(s.toolCallsMap) > 0 {
		indexes := make([]int, 0, len(s.toolCallsMap))
		for idx := range s.toolCallsMap {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)

		msg.ToolCalls = make([]*llm.ToolCall, 0, len(indexes))
		for _, idx := range indexes {
			msg.ToolCalls = append(msg.ToolCalls, s.toolCallsMap[idx])
		}
	}
	return msg, s.stopReason
}

func (s *StreamReader) Close() error {
	return s.stream.Close()
}
