package llm

import "context"

// MockClient is a canned-response Client for tests and offline
// development. Set Response/Err for fixed behavior, or the Func fields
// for full control.
type MockClient struct {
	ProviderName string
	Response     string
	Err          error
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	StreamFunc   func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

func (m *MockClient) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	content := m.Response
	if content == "" {
		content = "mock response"
	}
	return &CompletionResponse{Content: content, Model: m.Name()}, nil
}

func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}

	content := m.Response
	if content == "" {
		content = "mock stream response"
	}

	ch := make(chan StreamEvent, 2)
	ch <- StreamEvent{Type: StreamDelta, Content: content}
	ch <- StreamEvent{
		Type:     StreamDone,
		Response: &CompletionResponse{Content: content, Model: m.Name()},
	}
	close(ch)
	return ch, nil
}
