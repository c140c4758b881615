// Package gateway serves the RPC surface over HTTP + WebSocket: a
// challenge/connect handshake authenticates each connection, then
// request frames are dispatched to method handlers on a bounded worker
// pool. Streaming answers go out as chat.delta event frames on the same
// socket.
package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/docent/internal/agent"
	"github.com/soyeahso/docent/internal/chat"
	"github.com/soyeahso/docent/internal/config"
	"github.com/soyeahso/docent/internal/hooks"
	"github.com/soyeahso/docent/internal/ingest"
	"github.com/soyeahso/docent/internal/logging"
	"github.com/soyeahso/docent/internal/metrics"
	"github.com/soyeahso/docent/internal/version"
)

var ErrClientClosed = errors.New("client connection closed")

// maxPayloadBytes bounds a single WebSocket message.
const maxPayloadBytes = 4 << 20

// defaultWorkers sizes the RPC worker pool when config leaves it unset.
const defaultWorkers = 10

// handshakeWait bounds how long an unauthenticated socket may sit
// between upgrade and a valid connect frame.
const handshakeWait = 10 * time.Second

// HealthProbe reports one collaborator's availability.
type HealthProbe func(ctx context.Context) error

// Server is the docent gateway HTTP + WebSocket server.
type Server struct {
	cfg      config.Config
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string
	eventSeq atomic.Int64

	chat    *chat.Service
	ingest  *ingest.Service
	tools   *agent.Registry
	hooks   *hooks.Manager
	metrics *metrics.Metrics
	probes  map[string]HealthProbe

	// workers is the RPC slot semaphore. Every dispatched request holds
	// one slot for its full duration, streaming included.
	workers chan struct{}

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
	throttle   *authThrottle
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithChat sets the chat service behind chat.*, history.*, and session.*.
func WithChat(c *chat.Service) ServerOption {
	return func(s *Server) { s.chat = c }
}

// WithIngest sets the ingestion service behind docs.*.
func WithIngest(i *ingest.Service) ServerOption {
	return func(s *Server) { s.ingest = i }
}

// WithTools sets the tool registry behind tools.list and tools.invoke.
func WithTools(r *agent.Registry) ServerOption {
	return func(s *Server) { s.tools = r }
}

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithMetrics enables the /metrics endpoint and request instrumentation.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithHealthProbe registers one named collaborator probe for the health RPC.
func WithHealthProbe(name string, probe HealthProbe) ServerOption {
	return func(s *Server) { s.probes[name] = probe }
}

// New creates a gateway server.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	workers := cfg.Server.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	s := &Server{
		cfg:      cfg,
		auth:     ResolveAuth(cfg.Server.Auth),
		log:      log.Sub("gateway"),
		clients:  NewClientRegistry(log.Sub("clients")),
		handlers: make(map[string]RequestHandler),
		probes:   make(map[string]HealthProbe),
		version:  version.Version,
		workers:  make(chan struct{}, workers),
		throttle: newAuthThrottle(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Server.CORSOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()

	// Connected clients learn about finished batches without polling.
	if s.hooks != nil {
		s.hooks.On(hooks.EventIngestFinished, "gateway.broadcast", func(_ context.Context, p hooks.Payload) error {
			s.clients.Broadcast("docs.event", p, s.eventSeq.Add(1))
			return nil
		})
	}

	return s
}

// checkWebSocketOrigin validates Origin headers on the upgrade. An absent
// Origin (same-origin or non-browser client) is always allowed; otherwise
// the configured list decides, same as the CORS layer.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || originAllowed(origin, allowed)
	}
}

// Handle binds an RPC method name to its handler. All registration
// happens inside New; the map is never written once Start is called, so
// dispatch reads it without locking.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods lists the registered RPC names in sorted order, keeping the
// hello frame's feature advertisement stable across connections.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// resolveBindAddr maps the configured bind mode to a listen address.
// Unrecognized modes bind loopback, the safe direction to fail in.
func resolveBindAddr(cfg config.ServerConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return fmt.Sprintf("%s:%d", host, cfg.Port)
}

// Start listens and serves until ctx is cancelled or the listener
// fails. Cancellation drains connected clients, gives in-flight HTTP
// requests ten seconds, and then returns nil.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Server)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if ln, err = s.secureListener(ln); err != nil {
		return err
	}

	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      withMiddleware(mux, s.log, s.cfg.Server.CORSOrigins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Server.Bind).
		Str("auth", s.auth.Mode).
		Int("methods", len(s.handlers)).
		Int("workers", cap(s.workers)).
		Msg("gateway server ready")

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventServerStart, map[string]any{
			"addr": ln.Addr().String(),
		})
	}

	go s.awaitShutdown(ctx)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// secureListener wraps ln in TLS when configured. Without TLS on a
// non-loopback bind, tokens cross the network in cleartext, which is
// worth a warning on every start.
func (s *Server) secureListener(ln net.Listener) (net.Listener, error) {
	tlsCfg := s.cfg.Server.TLS
	if !tlsCfg.Enabled {
		if s.cfg.Server.Bind != "loopback" {
			s.log.Warn().Msg("TLS disabled on non-loopback bind, credentials travel in cleartext")
		}
		return ln, nil
	}

	cert, err := tls.LoadX509KeyPair(tlsCfg.CertPath, tlsCfg.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	s.log.Info().Msg("TLS enabled")
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// awaitShutdown blocks on ctx and then tears the server down: stop
// hooks fire first, then connected sockets get close frames, then the
// HTTP server drains.
func (s *Server) awaitShutdown(ctx context.Context) {
	<-ctx.Done()
	s.log.Info().Msg("shutting down gateway server")
	if s.hooks != nil {
		s.hooks.Emit(context.Background(), hooks.EventServerStop, nil)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.clients.CloseAll()
	s.httpServer.Shutdown(shutdownCtx)
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// handleWebSocket is the GET /ws endpoint: upgrade, authenticate, then
// pump request frames until the peer goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.throttle.blocked(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn.SetReadLimit(maxPayloadBytes)

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket connection")

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("handshake failed")
		s.throttle.fail(conn.RemoteAddr().String())
		conn.Close()
		return
	}

	// Dies with the connection, so in-flight streams stop producing
	// promptly once the caller is gone.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.readLoop(ctx, client)
}

// handshake authenticates a fresh socket. The server opens with a
// challenge event, the client answers with a connect request carrying
// its credentials, and a hello-ok response seals the session.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeWait))

	if err := s.sendChallenge(conn); err != nil {
		return nil, err
	}

	frame, params, err := awaitConnect(conn)
	if err != nil {
		return nil, err
	}

	authResult := Authorize(s.auth, params.Auth)
	if !authResult.OK {
		sendErrorAndClose(conn, frame.ID, "unauthorized", authResult.Reason, 401)
		return nil, fmt.Errorf("auth failed: %s", authResult.Reason)
	}

	// Authenticated sockets idle freely between requests.
	conn.SetReadDeadline(time.Time{})

	client := NewClient(conn, params.Client, authResult, s.log.Sub("ws"))

	resp, err := NewResponse(frame.ID, s.hello(client))
	if err != nil {
		return nil, fmt.Errorf("creating hello response: %w", err)
	}
	if err := conn.WriteJSON(resp); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("authMethod", authResult.Method).
		Msg("client authenticated")

	return client, nil
}

// sendChallenge opens the handshake with a nonce event.
func (s *Server) sendChallenge(conn *websocket.Conn) error {
	challenge, err := NewEvent("connect.challenge", map[string]any{
		"nonce": uuid.New().String(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return fmt.Errorf("sending challenge: %w", err)
	}
	return nil
}

// awaitConnect reads the client's answer to the challenge and insists
// it is a well-formed connect request. Anything else earns an error
// response before the socket is dropped.
func awaitConnect(conn *websocket.Conn) (Frame, ConnectParams, error) {
	var (
		frame  Frame
		params ConnectParams
	)

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return frame, params, fmt.Errorf("reading connect: %w", err)
	}
	if err := json.Unmarshal(msg, &frame); err != nil {
		return frame, params, fmt.Errorf("parsing connect frame: %w", err)
	}

	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "expected connect request", 400)
		return frame, params, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		sendErrorAndClose(conn, frame.ID, "invalid_params", "invalid connect params", 400)
		return frame, params, fmt.Errorf("parsing connect params: %w", err)
	}
	return frame, params, nil
}

// hello describes this server to a freshly authenticated client.
func (s *Server) hello(client *Client) HelloOK {
	return HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
		},
		Features: Features{
			Methods: s.Methods(),
			Events:  []string{"connect.challenge", "chat.delta", "docs.event"},
		},
		Policy: ServerPolicy{
			MaxPayload:     maxPayloadBytes,
			TickIntervalMs: 30000,
		},
	}
}

// readLoop pulls frames off an authenticated socket until it closes.
// Only request frames are dispatched; everything else is dropped.
func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("peer closed connection")
			} else {
				s.log.Warn().Err(err).Str("connId", client.ConnID).Msg("websocket read failed")
			}
			return
		}

		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("dropping non-request frame")
			continue
		}

		s.dispatch(ctx, client, frame)
	}
}

// dispatch routes a request frame to its handler on the worker pool.
// Acquiring a slot blocks when every worker is busy, which backpressures
// this connection's read loop; the slot is held for the handler's full
// duration, streaming lifetime included.
func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID,
			Status{Success: false, Message: "unknown method: " + frame.Method, Code: 400, Error: "method_not_found"},
			ErrorShape{Code: "method_not_found", Message: "unknown method: " + frame.Method})
		return
	}

	select {
	case s.workers <- struct{}{}:
	case <-ctx.Done():
		return
	}

	rc := &RequestContext{
		Ctx:    ctx,
		Client: client,
		Frame:  frame,
		Server: s,
		CorrID: uuid.New().String(),
	}

	go func() {
		start := time.Now()
		defer func() { <-s.workers }()
		handler(rc)
		if rc.code == 0 {
			rc.code = 200
		}
		s.metrics.ObserveRequest(frame.Method, rc.code, time.Since(start))
	}()
}

// sendErrorAndClose answers a pre-authentication request with an error
// frame and a normal close. Used only during the handshake; established
// connections respond through their Client.
func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string, wireCode int) {
	errFrame := NewErrorResponse(reqID,
		Status{Success: false, Message: message, Code: wireCode, Error: code},
		ErrorShape{Code: code, Message: message})
	conn.WriteJSON(errFrame)
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
