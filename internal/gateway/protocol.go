package gateway

import "encoding/json"

// The three frame types a connection can carry.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Frame is the envelope every WebSocket message travels in. Type picks
// which of the three field groups below is meaningful; the rest stay
// empty and are omitted on the wire.
type Frame struct {
	Type string `json:"type"`

	// Request fields
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// Response fields
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Event fields
	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`

	// Error (response only)
	Error *ErrorShape `json:"error,omitempty"`
}

// ErrorShape rides in failed response frames. Code is a stable
// taxonomy kind clients may switch on; Message is for humans.
type ErrorShape struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Status is embedded in every RPC result payload. Code is the wire
// status for the outcome; on failure Error names the taxonomy kind and
// CorrID locates the server-side log entries.
type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
	Error   string `json:"error,omitempty"`
	CorrID  string `json:"corr_id,omitempty"`
}

// okStatus is the Status for a successful result.
func okStatus(message string) Status {
	return Status{Success: true, Message: message, Code: 200}
}

// ConnectParams open the handshake: the client states which protocol
// range it speaks and who it is.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

// ClientInfo names the connecting client for logs and the registry.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
}

// ConnectAuth carries whichever credential the client has. Token wins
// when both are present.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK acknowledges a successful connect. After this frame the
// connection accepts regular RPC requests.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo tells the client what it connected to.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features lists the method and event names this server will honor,
// so clients can degrade instead of guessing.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy states the limits a client must respect.
type ServerPolicy struct {
	MaxPayload     int `json:"maxPayload"`
	TickIntervalMs int `json:"tickIntervalMs"`
}

// NewRequest builds a request frame, marshaling params up front so an
// unencodable payload fails at the call site.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: raw,
	}, nil
}

// NewResponse builds a success response for the given request ID.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		OK:      &ok,
		Payload: raw,
	}, nil
}

// NewErrorResponse creates an error response frame. The payload still
// carries an embedded Status so every response, failed or not, has one.
func NewErrorResponse(id string, st Status, shape ErrorShape) Frame {
	raw, _ := json.Marshal(struct {
		Status Status `json:"status"`
	}{st})
	ok := false
	return Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		OK:      &ok,
		Payload: raw,
		Error:   &shape,
	}
}

// NewEvent builds an event frame at stream position seq.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: raw,
		Seq:     seq,
	}, nil
}

// ProtocolVersion is the single protocol revision this server speaks;
// connect negotiates against it.
const ProtocolVersion = 1
