package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient talks to the OpenAI chat completions API, or any
// compatible endpoint via a base URL override.
type OpenAIClient struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

type openAIOptions struct {
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

func NewOpenAIClient(apiKey, model string, opts openAIOptions) *OpenAIClient {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAIClient{
		client:      openai.NewClient(reqOpts...),
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
}

// Complete sends a non-streaming chat completion request.
func (o *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	completion, err := o.client.Chat.Completions.New(ctx, o.buildParams(req))
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, &ProviderError{Provider: "openai", Message: "empty choices in response"}
	}

	choice := completion.Choices[0]
	return &CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
		Model:    completion.Model,
		Duration: time.Since(start),
	}, nil
}

// Stream sends a streaming chat completion request, forwarding deltas
// as they arrive.
func (o *OpenAIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	eventChan := make(chan StreamEvent)
	go o.streamRequest(ctx, eventChan, o.buildParams(req))
	return eventChan, nil
}

// Name returns the provider name.
func (o *OpenAIClient) Name() string {
	return "openai"
}

func (o *OpenAIClient) buildParams(req CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if max := req.MaxTokens; max > 0 {
		params.MaxTokens = openai.Int(int64(max))
	} else if o.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.maxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	} else if o.temperature > 0 {
		params.Temperature = openai.Float(o.temperature)
	}
	return params
}

func (o *OpenAIClient) streamRequest(ctx context.Context, eventChan chan StreamEvent, params openai.ChatCompletionNewParams) {
	defer close(eventChan)

	start := time.Now()
	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var full strings.Builder
	var usage Usage
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage.InputTokens = int(chunk.Usage.PromptTokens)
			usage.OutputTokens = int(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if !deliver(ctx, eventChan, StreamEvent{Type: StreamDelta, Content: delta}) {
			return
		}
	}

	if err := stream.Err(); err != nil {
		deliver(ctx, eventChan, StreamEvent{Type: StreamError, Error: wrapOpenAIError(err).Error()})
		return
	}

	deliver(ctx, eventChan, StreamEvent{
		Type: StreamDone,
		Response: &CompletionResponse{
			Content:  full.String(),
			Usage:    usage,
			Model:    string(params.Model),
			Duration: time.Since(start),
		},
	})
}

// wrapOpenAIError converts SDK errors into ProviderError so callers
// can classify them by status code.
func wrapOpenAIError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &ProviderError{
			Provider: "openai",
			Message:  apierr.Message,
			Code:     apierr.StatusCode,
		}
	}
	return &ProviderError{Provider: "openai", Message: err.Error()}
}
