package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wire constants are part of the protocol contract; changing them
// breaks every deployed client.
func TestWireConstants(t *testing.T) {
	assert.Equal(t, "req", FrameTypeRequest)
	assert.Equal(t, "res", FrameTypeResponse)
	assert.Equal(t, "event", FrameTypeEvent)
	assert.Equal(t, 1, ProtocolVersion)
}

func TestNewRequest(t *testing.T) {
	frame, err := NewRequest("req-2", "history.get", map[string]string{"session_id": "sess-1"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeRequest, frame.Type)
	assert.Equal(t, "req-2", frame.ID)
	assert.Equal(t, "history.get", frame.Method)
	assert.JSONEq(t, `{"session_id":"sess-1"}`, string(frame.Params))
}

func TestNewRequestRejectsUnencodableParams(t *testing.T) {
	_, err := NewRequest("req-1", "chat.send", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestNewResponse(t *testing.T) {
	frame, err := NewResponse("req-1", map[string]string{"answer": "ok"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeResponse, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	require.NotNil(t, frame.OK)
	assert.True(t, *frame.OK)
	assert.Nil(t, frame.Error)
	assert.JSONEq(t, `{"answer":"ok"}`, string(frame.Payload))
}

func TestNewResponseNilPayload(t *testing.T) {
	frame, err := NewResponse("req-1", nil)
	require.NoError(t, err)
	require.NotNil(t, frame.OK)
	assert.True(t, *frame.OK)
}

func TestNewErrorResponse(t *testing.T) {
	st := Status{Success: false, Message: "invalid token", Code: 401, Error: "unauthorized"}
	frame := NewErrorResponse("req-1", st, ErrorShape{
		Code:    "unauthorized",
		Message: "invalid token",
	})

	assert.Equal(t, FrameTypeResponse, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	require.NotNil(t, frame.OK)
	assert.False(t, *frame.OK)
	require.NotNil(t, frame.Error)
	assert.Equal(t, "unauthorized", frame.Error.Code)
	assert.Equal(t, "invalid token", frame.Error.Message)
}

// Error responses still carry an embedded status in the payload, so every
// response a client sees has one regardless of outcome.
func TestNewErrorResponsePayloadCarriesStatus(t *testing.T) {
	st := Status{
		Success: false,
		Message: "backing store unreachable",
		Code:    503,
		Error:   "unavailable",
		CorrID:  "corr-1",
	}
	frame := NewErrorResponse("req-2", st, ErrorShape{
		Code:      "unavailable",
		Message:   "backing store unreachable",
		Retryable: true,
	})

	var payload struct {
		Status Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.False(t, payload.Status.Success)
	assert.Equal(t, 503, payload.Status.Code)
	assert.Equal(t, "unavailable", payload.Status.Error)
	assert.Equal(t, "corr-1", payload.Status.CorrID)
	assert.True(t, frame.Error.Retryable)
}

func TestNewEvent(t *testing.T) {
	frame, err := NewEvent("chat.delta", map[string]string{"fragment": "hello"}, 42)
	require.NoError(t, err)

	assert.Equal(t, FrameTypeEvent, frame.Type)
	assert.Equal(t, "chat.delta", frame.Event)
	assert.Equal(t, int64(42), frame.Seq)
	assert.JSONEq(t, `{"fragment":"hello"}`, string(frame.Payload))
}

func TestOkStatus(t *testing.T) {
	st := okStatus("answer generated")
	assert.True(t, st.Success)
	assert.Equal(t, 200, st.Code)
	assert.Equal(t, "answer generated", st.Message)
	assert.Empty(t, st.Error)
}

// Successful statuses keep failure-only fields off the wire entirely.
func TestStatusOmitsEmptyOnSuccess(t *testing.T) {
	data, err := json.Marshal(okStatus("ok"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "corr_id")
	assert.NotContains(t, string(data), `"error"`)
}

func TestConnectParamsOmitNilAuth(t *testing.T) {
	params := ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "client", Version: "1.0.0", Platform: "linux"},
	}

	data, err := json.Marshal(params)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"auth"`)
}

func TestErrorShapeOmitsEmpty(t *testing.T) {
	data, err := json.Marshal(ErrorShape{Code: "invalid_input", Message: "missing params"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "details")
	assert.NotContains(t, string(data), "retryable")
}
