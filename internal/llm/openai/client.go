package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"toolrepro/internal/llm"

	openai "github.com/sashabaranov/go-openai"
)

type Client struct {
	client *openai.Client
	model  string
}

// Options tunes the underlying SDK client. Zero values keep the SDK defaults.
type Options struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a go-openai backed client. An empty BaseURL uses the
// OpenAI endpoint; anything else points at an OpenAI-compatible API.
func NewClient(apiKey, model string, opts Options) *Client {
	config := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, classifyError(err)
	}

	return convertResponse(resp)
}

func (c *Client) Provider() string {
	return "go-openai"
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) buildRequest(req *llm.ChatRequest, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    convertMessages(req.Messages),
		Tools:       convertTools(req.Tools),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}

func convertMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(msgs))
	for i, msg := range msgs {
		ocMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}

		if len(msg.ToolCalls) > 0 {
			ocMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
			for j, tc := range msg.ToolCalls {
				ocMsg.ToolCalls[j] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}
			}
		}

		if msg.Role == llm.RoleTool {
			ocMsg.ToolCallID = msg.ToolCallID
			ocMsg.Name = msg.Name
		}

		result[i] = ocMsg
	}
	return result
}

func convertTools(tools []*llm.ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		}
	}
	return result
}

func convertResponse(resp openai.ChatCompletionResponse) (*llm.ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", llm.ErrMalformedResponse)
	}

	choice := resp.Choices[0]
	msg := choice.Message

	role := llm.Role(msg.Role)
	if role == "" {
		role = llm.RoleAssistant
	}

	result := &llm.ChatResponse{
		Message: llm.Message{
			Role:      role,
			Reason:    msg.ReasoningContent,
			Content:   msg.Content,
			Timestamp: time.Now(),
		},
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	if len(msg.ToolCalls) > 0 {
		result.Message.ToolCalls = make([]*llm.ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			result.Message.ToolCalls[i] = &llm.ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: &llm.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
		if err := llm.ValidateToolCalls(result.Message.ToolCalls); err != nil {
			return nil, err
		}
		llm.EnsureToolCallIDs(result.Message.ToolCalls)
		result.StopReason = llm.StopReasonToolCalls
	} else {
		result.StopReason = llm.StopReason(choice.FinishReason)
		if result.StopReason == "" {
			result.StopReason = llm.StopReasonStop
		}
	}

	return result, nil
}

// classifyError maps go-openai errors onto the llm error kinds.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", llm.ErrAuthentication, err)
		default:
			return fmt.Errorf("%w: %w", llm.ErrTransport, err)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.HTTPStatusCode == http.StatusUnauthorized || reqErr.HTTPStatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %w", llm.ErrAuthentication, err)
		case reqErr.HTTPStatusCode >= 200 && reqErr.HTTPStatusCode < 300:
			// A 2xx that could not be decoded.
			return fmt.Errorf("%w: %w", llm.ErrMalformedResponse, err)
		default:
			return fmt.Errorf("%w: %w", llm.ErrTransport, err)
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %w", llm.ErrMalformedResponse, err)
	}

	return fmt.Errorf("%w: %w", llm.ErrTransport, err)
}
