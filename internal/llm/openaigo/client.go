// Package openaigo implements llm.Client on top of the official openai-go SDK.
// It exists to cross-check the go-openai backend: if both SDKs see the same
// reply, the symptom belongs to the endpoint rather than to a client library.
package openaigo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"toolrepro/internal/llm"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type Client struct {
	client openai.Client
	model  string
}

// Options tunes the underlying SDK client. Zero values keep the SDK defaults.
type Options struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates an openai-go backed client. SDK retries are disabled so a
// failing request is reported once, as it happened.
func NewClient(apiKey, model string, opts Options) *Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}))
	}

	return &Client{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	completion, err := c.client.Chat.Completions.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, classifyError(err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", llm.ErrMalformedResponse)
	}

	choice := completion.Choices[0]
	resp, err := convertMessage(choice.Message, choice.FinishReason)
	if err != nil {
		return nil, err
	}
	resp.Usage = llm.Usage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}
	return resp, nil
}

func (c *Client) Provider() string {
	return "openai-go"
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) buildParams(req *llm.ChatRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    convertMessages(req.Messages),
		Temperature: openai.Float(temperature(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if tools := convertTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	return params
}

// temperature widens t by its shortest decimal form, so 0.3 is sent as 0.3
// rather than 0.30000001192092896.
func temperature(t float32) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(float64(t), 'f', -1, 32), 64)
	if err != nil {
		return float64(t)
	}
	return v
}

func convertMessages(msgs []llm.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(msgs))
	for i, msg := range msgs {
		switch msg.Role {
		case llm.RoleSystem:
			result[i] = openai.SystemMessage(msg.Content)
		case llm.RoleTool:
			result[i] = openai.ToolMessage(msg.Content, msg.ToolCallID)
		case llm.RoleAssistant:
			result[i] = assistantMessage(msg)
		default:
			result[i] = openai.UserMessage(msg.Content)
		}
	}
	return result
}

// assistantMessage keeps the tool-call record, which openai.AssistantMessage cannot carry.
func assistantMessage(msg llm.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.ToolCalls) == 0 {
		return openai.AssistantMessage(msg.Content)
	}

	asst := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		asst.Content.OfString = openai.String(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
}

func convertTools(tools []*llm.ToolDefinition) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, t := range tools {
		result[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: openai.String(t.Function.Description),
			Parameters:  openai.FunctionParameters(t.Function.Parameters),
		})
	}
	return result
}

func convertMessage(msg openai.ChatCompletionMessage, finishReason string) (*llm.ChatResponse, error) {
	result := &llm.ChatResponse{
		Message: llm.Message{
			Role:      llm.RoleAssistant,
			Content:   msg.Content,
			Timestamp: time.Now(),
		},
	}

	if len(msg.ToolCalls) > 0 {
		result.Message.ToolCalls = make([]*llm.ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			result.Message.ToolCalls[i] = &llm.ToolCall{
				ID:   tc.ID,
				Type: "function",
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
		return result, nil
	}

	result.StopReason = llm.StopReason(finishReason)
	if result.StopReason == "" {
		result.StopReason = llm.StopReasonStop
	}
	return result, nil
}

// classifyError maps openai-go errors onto the llm error kinds.
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", llm.ErrAuthentication, err)
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
