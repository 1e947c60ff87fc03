// Package mockserver is an OpenAI-compatible chat-completion endpoint that
// replays the tool-calling exchange deterministically, including the
// empty-reply-after-tool-result defect, so the client can be exercised offline.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"toolrepro/internal/logger"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// Behaviour selects how the mock answers once a tool result comes back.
type Behaviour string

const (
	// BehaviourSummary answers every tool result with the fixed summary.
	BehaviourSummary Behaviour = "summary"
	// BehaviourEmptyAfterTool answers a tagged tool result with empty content.
	BehaviourEmptyAfterTool Behaviour = "empty-after-tool"
	// BehaviourMalformed answers every request with an empty choices list.
	BehaviourMalformed Behaviour = "malformed"
)

// Behaviours lists the accepted behaviour names.
var Behaviours = []Behaviour{BehaviourSummary, BehaviourEmptyAfterTool, BehaviourMalformed}

func ParseBehaviour(s string) (Behaviour, error) {
	for _, b := range Behaviours {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown mock behaviour %q (want one of %v)", s, Behaviours)
}

// UserResultPrefix marks a tool result sent with the user-message convention.
const UserResultPrefix = "Tool '"

const (
	DefaultModel       = "mock-moe-chat"
	DefaultLocation    = "Paris"
	DefaultToolName    = "get_weather" // used when the first tool has no function name
	DefaultSummary     = "It's a sunny day in Paris, currently 22°C."
	DefaultDirectReply = "I can look up the weather if you bind the get_weather tool."
)

type Options struct {
	Behaviour   Behaviour
	APIKey      string // when set, requests must carry "Authorization: Bearer <APIKey>"
	Model       string
	Location    string
	Summary     string
	DirectReply string
	Logger      *logger.Logger
}

// Server records every request it receives and answers from Options.
type Server struct {
	opts     Options
	log      *logger.Logger
	mux      *http.ServeMux
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
}

func New(opts Options) *Server {
	if opts.Behaviour == "" {
		opts.Behaviour = BehaviourSummary
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Location == "" {
		opts.Location = DefaultLocation
	}
	if opts.Summary == "" {
		opts.Summary = DefaultSummary
	}
	if opts.DirectReply == "" {
		opts.DirectReply = DefaultDirectReply
	}

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{opts: opts, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Requests returns a copy of every decoded request, oldest first.
func (s *Server) Requests() []openai.ChatCompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]openai.ChatCompletionRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.log.Info("Mock endpoint listening on http://%s/v1 (behaviour: %s)", addr, s.opts.Behaviour)

	select {
	case err := <-errCh:
		return fmt.Errorf("mock server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("mock server shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if s.opts.APIKey != "" && r.Header.Get("Authorization") != "Bearer "+s.opts.APIKey {
		s.log.Info("Rejected request: bad credentials")
		writeError(w, http.StatusUnauthorized, "Incorrect API key provided", "invalid_request_error", "invalid_api_key")
		return
	}

	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("could not parse request body: %v", err), "invalid_request_error", "invalid_json")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty", "invalid_request_error", "missing_messages")
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	rep := s.reply(req)
	s.log.Debug("Request #%d: %d message(s), last role %q -> %s", len(s.Requests()), len(req.Messages), req.Messages[len(req.Messages)-1].Role, rep.kind)

	if req.Stream {
		s.writeStream(w, req, rep)
		return
	}
	s.writeCompletion(w, req, rep)
}

type replyKind string

const (
	kindToolCall  replyKind = "tool_call"
	kindText      replyKind = "text"
	kindMalformed replyKind = "malformed"
)

type reply struct {
	kind     replyKind
	content  string
	toolCall wireToolCall
}

// reply decides what the assistant says next based on the conversation tail.
func (s *Server) reply(req openai.ChatCompletionRequest) reply {
	if s.opts.Behaviour == BehaviourMalformed {
		return reply{kind: kindMalformed}
	}

	last := req.Messages[len(req.Messages)-1]
	switch {
	case last.Role == openai.ChatMessageRoleTool:
		if s.opts.Behaviour == BehaviourEmptyAfterTool {
			return reply{kind: kindText, content: ""}
		}
		return reply{kind: kindText, content: s.opts.Summary}

	case last.Role == openai.ChatMessageRoleUser && strings.HasPrefix(last.Content, UserResultPrefix):
		return reply{kind: kindText, content: s.opts.Summary}

	case len(req.Tools) == 0:
		return reply{kind: kindText, content: s.opts.DirectReply}
	}

	name := DefaultToolName
	if fn := req.Tools[0].Function; fn != nil && fn.Name != "" {
		name = fn.Name
	}

	args, _ := json.Marshal(map[string]string{"location": s.opts.Location})
	return reply{
		kind: kindToolCall,
		toolCall: wireToolCall{
			ID:   "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24],
			Type: "function",
			Function: wireFunction{
				Name:      name,
				Arguments: string(args),
			},
		},
	}
}

func (s *Server) writeCompletion(w http.ResponseWriter, req openai.ChatCompletionRequest, rep reply) {
	resp := s.envelope("chat.completion")
	resp.Usage = &usage{PromptTokens: len(req.Messages) * 10, CompletionTokens: len(rep.content) / 4}
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens

	switch rep.kind {
	case kindMalformed:
		resp.Choices = []choice{}
	case kindToolCall:
		resp.Choices = []choice{{
			Message: &wireMessage{
				Role:      "assistant",
				ToolCalls: []wireToolCall{rep.toolCall},
			},
			FinishReason: strPtr("tool_calls"),
		}}
	default:
		resp.Choices = []choice{{
			Message:      &wireMessage{Role: "assistant", Content: strPtr(rep.content)},
			FinishReason: strPtr("stop"),
		}}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeStream(w http.ResponseWriter, req openai.ChatCompletionRequest, rep reply) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	var chunks []completion
	switch rep.kind {
	case kindMalformed:
		chunk := s.envelope("chat.completion.chunk")
		chunk.Choices = []choice{}
		chunks = append(chunks, chunk)

	case kindToolCall:
		zero := 0
		head := rep.toolCall
		head.Index = &zero
		argsFragment := head.Function.Arguments
		head.Function.Arguments = ""

		tail := wireToolCall{Index: &zero, Function: wireFunction{Arguments: argsFragment}}
		chunks = append(chunks,
			s.deltaChunk(&wireMessage{Role: "assistant", ToolCalls: []wireToolCall{head}}, nil),
			s.deltaChunk(&wireMessage{ToolCalls: []wireToolCall{tail}}, nil),
			s.deltaChunk(&wireMessage{}, strPtr("tool_calls")),
		)

	default:
		chunks = append(chunks, s.deltaChunk(&wireMessage{Role: "assistant", Content: strPtr("")}, nil))
		if rep.content != "" {
			chunks = append(chunks, s.deltaChunk(&wireMessage{Content: strPtr(rep.content)}, nil))
		}
		chunks = append(chunks, s.deltaChunk(&wireMessage{}, strPtr("stop")))
	}

	flusher, _ := w.(http.Flusher)
	for _, chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			s.log.Error("Failed to encode stream chunk: %v", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *Server) envelope(object string) completion {
	return completion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  object,
		Created: time.Now().Unix(),
		Model:   s.opts.Model,
	}
}

func (s *Server) deltaChunk(delta *wireMessage, finish *string) completion {
	chunk := s.envelope("chat.completion.chunk")
	chunk.Choices = []choice{{Delta: delta, FinishReason: finish}}
	return chunk
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, errType, code string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
}
