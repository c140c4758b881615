package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient is a direct HTTP client for the Ollama chat API.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates an Ollama client. baseURL should be like
// "http://localhost:11434"; empty selects that default.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &OllamaClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete sends a non-streaming chat request.
func (o *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	payload, err := json.Marshal(o.buildBody(req, false))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := o.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider: "ollama",
			Message:  strings.TrimSpace(string(body)),
			Code:     resp.StatusCode,
		}
	}

	var result ollamaChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return &CompletionResponse{
		Content: result.Message.Content,
		Usage: Usage{
			InputTokens:  result.PromptEvalCount,
			OutputTokens: result.EvalCount,
		},
		Model:    o.model,
		Duration: time.Since(start),
	}, nil
}

// Stream sends a streaming chat request, forwarding each NDJSON delta.
func (o *OllamaClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	payload, err := json.Marshal(o.buildBody(req, true))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	eventChan := make(chan StreamEvent)
	go o.streamRequest(ctx, eventChan, payload)
	return eventChan, nil
}

// Name returns the provider name.
func (o *OllamaClient) Name() string {
	return "ollama"
}

func (o *OllamaClient) buildBody(req CompletionRequest, stream bool) map[string]interface{} {
	model := req.Model
	if model == "" {
		model = o.model
	}

	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.System})
	}
	messages = append(messages, req.Messages...)

	body := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   stream,
	}
	if req.Temperature != nil {
		body["options"] = map[string]interface{}{"temperature": *req.Temperature}
	}
	return body
}

func (o *OllamaClient) post(ctx context.Context, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Message: err.Error()}
	}
	return resp, nil
}

func (o *OllamaClient) streamRequest(ctx context.Context, eventChan chan StreamEvent, payload []byte) {
	defer close(eventChan)

	start := time.Now()
	resp, err := o.post(ctx, payload)
	if err != nil {
		deliver(ctx, eventChan, StreamEvent{Type: StreamError, Error: err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		perr := &ProviderError{
			Provider: "ollama",
			Message:  strings.TrimSpace(string(body)),
			Code:     resp.StatusCode,
		}
		deliver(ctx, eventChan, StreamEvent{Type: StreamError, Error: perr.Error()})
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	var full strings.Builder
	var usage Usage

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		var event ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		if event.Message.Content != "" {
			full.WriteString(event.Message.Content)
			if !deliver(ctx, eventChan, StreamEvent{Type: StreamDelta, Content: event.Message.Content}) {
				return
			}
		}
		if event.Done {
			usage.InputTokens = event.PromptEvalCount
			usage.OutputTokens = event.EvalCount
		}
	}

	if err := scanner.Err(); err != nil {
		deliver(ctx, eventChan, StreamEvent{Type: StreamError, Error: fmt.Sprintf("stream read failed: %v", err)})
		return
	}

	deliver(ctx, eventChan, StreamEvent{
		Type: StreamDone,
		Response: &CompletionResponse{
			Content:  full.String(),
			Usage:    usage,
			Model:    o.model,
			Duration: time.Since(start),
		},
	})
}

type ollamaChatResponse struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}
