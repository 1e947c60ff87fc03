package openaigo

import (
	"context"
	"fmt"

	"toolrepro/internal/llm"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"
)

type StreamReader struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	acc    openai.ChatCompletionAccumulator
}

func (c *Client) ChatStream(ctx context.Context, req *llm.ChatRequest) (llm.StreamReader, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.buildParams(req))
	// The request is sent lazily; surface an immediate failure here.
	if err := stream.Err(); err != nil {
		return nil, classifyError(err)
	}
	return &StreamReader{stream: stream}, nil
}

func (s *StreamReader) Recv() (*llm.Delta, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return nil, classifyError(err)
		}
		return &llm.Delta{Done: true}, nil
	}

	chunk := s.stream.Current()
	s.acc.AddChunk(chunk)

	if len(chunk.Choices) == 0 {
		// Some servers send a trailing usage-only chunk.
		if chunk.Usage.TotalTokens > 0 {
			return &llm.Delta{}, nil
		}
		return nil, fmt.Errorf("%w: no choices in stream chunk", llm.ErrMalformedResponse)
	}

	delta := chunk.Choices[0].Delta
	result := &llm.Delta{
		Role:    llm.Role(delta.Role),
		Content: delta.Content,
	}
	for _, tc := range delta.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, &llm.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: &llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return result, nil
}

// Accumulated returns the message folded by the SDK accumulator.
func (s *StreamReader) Accumulated() (llm.Message, llm.StopReason) {
	if len(s.acc.Choices) == 0 {
		return llm.Message{Role: llm.RoleAssistant}, ""
	}

	choice := s.acc.Choices[0]
	msg := llm.Message{
		Role:    llm.RoleAssistant,
		Content: choice.Message.Content,
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, &llm.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: &llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return msg, llm.StopReason(choice.FinishReason)
}

func (s *StreamReader) Close() error {
	return s.stream.Close()
}
