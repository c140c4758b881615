package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/docent/internal/config"
	"github.com/soyeahso/docent/internal/domain"
	"github.com/soyeahso/docent/internal/gateway"
	"github.com/soyeahso/docent/internal/llm"
	"github.com/soyeahso/docent/internal/version"
)

// Client-side views of the gateway's RPC payloads. Unknown fields in the
// server response are ignored, so these only name what the commands print.

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	UseTools  bool   `json:"use_tools,omitempty"`
	K         int    `json:"k,omitempty"`
}

type chatAnswer struct {
	SessionID string    `json:"session_id"`
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources,omitempty"`
	ToolCalls []string  `json:"tool_calls,omitempty"`
	Retrieved int       `json:"retrieved"`
	Model     string    `json:"model,omitempty"`
	Usage     llm.Usage `json:"usage"`
}

type chatFragment struct {
	RequestID string `json:"request_id"`
	domain.StreamEvent
}

type chatStreamEnd struct {
	SessionID string   `json:"session_id"`
	Sources   []string `json:"sources,omitempty"`
	ToolCalls []string `json:"tool_calls,omitempty"`
	Retrieved int      `json:"retrieved"`
}

type historyView struct {
	SessionID string           `json:"session_id"`
	Messages  []domain.Message `json:"messages"`
	Count     int              `json:"count"`
}

type sessionCloseView struct {
	SessionID    string     `json:"session_id"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	MessageCount int        `json:"message_count"`
}

type ingestStarted struct {
	JobID      string `json:"job_id"`
	JobStatus  string `json:"job_status"`
	TotalFiles int    `json:"total_files"`
}

type jobView struct {
	Job *domain.IngestionJob `json:"job"`
}

type docsView struct {
	Documents []domain.Document `json:"documents"`
	Count     int               `json:"count"`
}

type healthView struct {
	Healthy    bool            `json:"healthy"`
	Version    string          `json:"version"`
	Components map[string]bool `json:"components"`
	Clients    int             `json:"clients"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type ingestRequest struct {
	Paths []string `json:"paths"`
}

type jobRequest struct {
	JobID string `json:"job_id"`
}

type docRemoveRequest struct {
	DocumentID string `json:"document_id"`
}

// gatewayClient is a WebSocket RPC client for a running gateway. One
// connection carries the whole command: handshake, calls, delta events.
type gatewayClient struct {
	conn   *websocket.Conn
	hello  gateway.HelloOK
	nextID atomic.Int64
}

// dialGateway connects and authenticates against the gateway at server
// (host:port), falling back to the loopback address from config. The
// same credential resolution the server uses applies client-side, so
// DOCENT_GATEWAY_TOKEN and DOCENT_GATEWAY_PASSWORD work in both roles.
func dialGateway(ctx context.Context, cfg config.Config, server string) (*gatewayClient, error) {
	addr := server
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	}
	scheme := "ws"
	if cfg.Server.TLS.Enabled {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: addr, Path: "/ws"}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u.String(), err)
	}

	hello, err := clientHandshake(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Tears the connection down on SIGINT so blocked reads return.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return &gatewayClient{conn: conn, hello: hello}, nil
}

func clientHandshake(conn *websocket.Conn, cfg config.Config) (gateway.HelloOK, error) {
	var hello gateway.HelloOK

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var challenge gateway.Frame
	if err := conn.ReadJSON(&challenge); err != nil {
		return hello, fmt.Errorf("reading challenge: %w", err)
	}
	if challenge.Type != gateway.FrameTypeEvent || challenge.Event != "connect.challenge" {
		return hello, fmt.Errorf("expected connect.challenge, got type=%s event=%s", challenge.Type, challenge.Event)
	}

	auth := gateway.ResolveAuth(cfg.Server.Auth)
	creds := &gateway.ConnectAuth{}
	if auth.Mode == "password" {
		creds.Password = auth.Password
	} else {
		creds.Token = auth.Token
	}

	params := gateway.ConnectParams{
		MinProtocol: gateway.ProtocolVersion,
		MaxProtocol: gateway.ProtocolVersion,
		Client: gateway.ClientInfo{
			ID:          "docent-cli",
			DisplayName: "docent CLI",
			Version:     version.Version,
			Platform:    runtime.GOOS,
		},
		Auth: creds,
	}

	req, err := gateway.NewRequest("connect-1", "connect", params)
	if err != nil {
		return hello, fmt.Errorf("building connect request: %w", err)
	}
	if err := conn.WriteJSON(req); err != nil {
		return hello, fmt.Errorf("sending connect: %w", err)
	}

	var resp gateway.Frame
	if err := conn.ReadJSON(&resp); err != nil {
		return hello, fmt.Errorf("reading hello: %w", err)
	}
	if resp.Error != nil {
		return hello, fmt.Errorf("gateway refused connection: %s", resp.Error.Message)
	}
	if resp.Type != gateway.FrameTypeResponse || resp.OK == nil || !*resp.OK {
		return hello, fmt.Errorf("unexpected handshake response type=%s", resp.Type)
	}
	if err := json.Unmarshal(resp.Payload, &hello); err != nil {
		return hello, fmt.Errorf("decoding hello: %w", err)
	}

	conn.SetReadDeadline(time.Time{})
	return hello, nil
}

// call sends one request and decodes the matching response into result.
// Broadcast events arriving in between are skipped.
func (c *gatewayClient) call(ctx context.Context, method string, params, result any) error {
	id := fmt.Sprintf("cli-%d", c.nextID.Add(1))
	req, err := gateway.NewRequest(id, method, params)
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}

	for {
		var frame gateway.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("reading %s response: %w", method, err)
		}
		if frame.Type != gateway.FrameTypeResponse || frame.ID != id {
			continue
		}
		if frame.Error != nil {
			return rpcError(method, frame.Error)
		}
		if result != nil {
			if err := json.Unmarshal(frame.Payload, result); err != nil {
				return fmt.Errorf("decoding %s response: %w", method, err)
			}
		}
		return nil
	}
}

// stream drives chat.stream, invoking onDelta for every fragment that
// belongs to this request, and returns the terminal summary.
func (c *gatewayClient) stream(ctx context.Context, params chatRequest, onDelta func(chatFragment)) (chatStreamEnd, error) {
	var end chatStreamEnd

	id := fmt.Sprintf("cli-%d", c.nextID.Add(1))
	req, err := gateway.NewRequest(id, "chat.stream", params)
	if err != nil {
		return end, fmt.Errorf("building chat.stream request: %w", err)
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return end, fmt.Errorf("sending chat.stream: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}

	for {
		var frame gateway.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return end, fmt.Errorf("reading stream: %w", err)
		}

		switch {
		case frame.Type == gateway.FrameTypeEvent && frame.Event == "chat.delta":
			var d chatFragment
			if err := json.Unmarshal(frame.Payload, &d); err != nil {
				continue
			}
			if d.RequestID != id {
				continue
			}
			onDelta(d)

		case frame.Type == gateway.FrameTypeResponse && frame.ID == id:
			if frame.Error != nil {
				return end, rpcError("chat.stream", frame.Error)
			}
			if err := json.Unmarshal(frame.Payload, &end); err != nil {
				return end, fmt.Errorf("decoding stream result: %w", err)
			}
			return end, nil
		}
	}
}

func (c *gatewayClient) close() {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
}

func rpcError(method string, shape *gateway.ErrorShape) error {
	if shape.Retryable {
		return fmt.Errorf("%s failed: %s (%s, retryable)", method, shape.Message, shape.Code)
	}
	return fmt.Errorf("%s failed: %s (%s)", method, shape.Message, shape.Code)
}

// withGateway wraps the dial and teardown lifecycle around one command
// body. Commands that make a single call or a short sequence use this;
// the interactive chat loop manages its own connection.
func withGateway(server string, fn func(ctx context.Context, gc *gatewayClient) error) error {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		cfg = config.Defaults()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gc, err := dialGateway(ctx, cfg, server)
	if err != nil {
		return err
	}
	defer gc.close()

	return fn(ctx, gc)
}
