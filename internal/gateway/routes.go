package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/soyeahso/docent/internal/agent"
	"github.com/soyeahso/docent/internal/chat"
	"github.com/soyeahso/docent/internal/domain"
	"github.com/soyeahso/docent/internal/fault"
	"github.com/soyeahso/docent/internal/llm"
)

// Per-method ceilings. chat.stream has none here: the pipeline owns the
// production ceiling and the connection context handles disconnects.
const (
	probeTimeout = 2 * time.Second
	opTimeout    = 10 * time.Second
	sendTimeout  = 2 * time.Minute
	toolTimeout  = 30 * time.Second
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("chat.send", s.rpcChatSend)
	s.Handle("chat.stream", s.rpcChatStream)
	s.Handle("history.get", s.rpcHistoryGet)
	s.Handle("history.clear", s.rpcHistoryClear)
	s.Handle("session.close", s.rpcSessionClose)
	s.Handle("docs.ingest", s.rpcDocsIngest)
	s.Handle("docs.status", s.rpcDocsStatus)
	s.Handle("docs.list", s.rpcDocsList)
	s.Handle("docs.delete", s.rpcDocsDelete)
	s.Handle("tools.list", s.rpcToolsList)
	s.Handle("tools.invoke", s.rpcToolsInvoke)
}

// --- health ---

type healthResult struct {
	Status     Status          `json:"status"`
	Healthy    bool            `json:"healthy"`
	Version    string          `json:"version"`
	Components map[string]bool `json:"components"`
	Clients    int             `json:"clients"`
}

func (s *Server) rpcHealth(rc *RequestContext) {
	ctx, cancel := context.WithTimeout(rc.Ctx, probeTimeout)
	defer cancel()

	components := make(map[string]bool, len(s.probes))
	healthy := true
	for name, probe := range s.probes {
		err := probe(ctx)
		components[name] = err == nil
		if err != nil {
			healthy = false
			s.log.Warn().Err(err).Str("component", name).Msg("health probe failed")
		}
	}

	msg := "ok"
	if !healthy {
		msg = "degraded"
	}
	rc.Respond(healthResult{
		Status:     okStatus(msg),
		Healthy:    healthy,
		Version:    s.version,
		Components: components,
		Clients:    s.clients.Count(),
	})
}

// --- chat ---

type chatParams struct {
	SessionID string            `json:"session_id,omitempty"`
	Message   string            `json:"message"`
	UseTools  bool              `json:"use_tools,omitempty"`
	K         int               `json:"k,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p chatParams) request(clientID string) chat.Request {
	return chat.Request{
		SessionID: p.SessionID,
		Message:   p.Message,
		UseTools:  p.UseTools,
		K:         p.K,
		Metadata:  p.Metadata,
		ClientID:  clientID,
	}
}

type chatSendResult struct {
	Status    Status    `json:"status"`
	SessionID string    `json:"session_id"`
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources,omitempty"`
	ToolCalls []string  `json:"tool_calls,omitempty"`
	Retrieved int       `json:"retrieved"`
	Model     string    `json:"model,omitempty"`
	Usage     llm.Usage `json:"usage"`
}

func (s *Server) rpcChatSend(rc *RequestContext) {
	if s.chat == nil {
		rc.Fail(fault.New(fault.KindUnavailable, "chat service not configured"))
		return
	}

	var p chatParams
	if err := rc.Params(&p); err != nil {
		rc.Fail(fault.Invalid("malformed chat params"))
		return
	}

	ctx, cancel := context.WithTimeout(rc.Ctx, sendTimeout)
	defer cancel()

	resp, err := s.chat.Send(ctx, p.request(rc.Client.Info.ID))
	if err != nil {
		rc.Fail(err)
		return
	}

	rc.Respond(chatSendResult{
		Status:    okStatus("answer generated"),
		SessionID: resp.SessionID,
		Answer:    resp.Answer,
		Sources:   resp.Sources,
		ToolCalls: resp.ToolCalls,
		Retrieved: resp.Retrieved,
		Model:     resp.Model,
		Usage:     resp.Usage,
	})
}

// chatDelta is one chat.delta event. The embedded stream event carries
// the fragment and terminal status; RequestID ties it to the RPC call.
type chatDelta struct {
	RequestID string `json:"request_id"`
	domain.StreamEvent
}

type chatStreamResult struct {
	Status    Status   `json:"status"`
	SessionID string   `json:"session_id"`
	Sources   []string `json:"sources,omitempty"`
	ToolCalls []string `json:"tool_calls,omitempty"`
	Retrieved int      `json:"retrieved"`
}

// rpcChatStream forwards pipeline fragments as chat.delta events and
// finishes with a regular response once the terminal event arrives. The
// handler holds its worker slot for the full streaming lifetime.
func (s *Server) rpcChatStream(rc *RequestContext) {
	if s.chat == nil {
		rc.Fail(fault.New(fault.KindUnavailable, "chat service not configured"))
		return
	}

	var p chatParams
	if err := rc.Params(&p); err != nil {
		rc.Fail(fault.Invalid("malformed chat params"))
		return
	}

	handle, err := s.chat.Stream(rc.Ctx, p.request(rc.Client.Info.ID))
	if err != nil {
		rc.Fail(err)
		return
	}

	var terminal domain.StreamEvent
	sendFailed := false
	for evt := range handle.Events {
		if evt.Done {
			terminal = evt
		}
		if sendFailed {
			continue // keep draining so the turn still settles
		}
		delta := chatDelta{RequestID: rc.Frame.ID, StreamEvent: evt}
		if err := rc.Client.SendEvent("chat.delta", delta, s.eventSeq.Add(1)); err != nil {
			sendFailed = true
			s.log.Debug().Str("connId", rc.Client.ConnID).Msg("client gone mid-stream")
		}
	}

	switch {
	case sendFailed || rc.Ctx.Err() != nil || terminal.Status == "canceled":
		// Nobody is listening for a response.
		rc.code = 499
	case terminal.Status == "complete":
		rc.Respond(chatStreamResult{
			Status:    okStatus("stream complete"),
			SessionID: handle.SessionID,
			Sources:   handle.Sources,
			ToolCalls: handle.ToolCalls,
			Retrieved: handle.Retrieved,
		})
	default:
		rc.Fail(fault.New(fault.KindProvider, "generation failed mid-stream"))
	}
}

// --- sessions ---

type sessionParams struct {
	SessionID string `json:"session_id"`
}

type historyResult struct {
	Status    Status           `json:"status"`
	SessionID string           `json:"session_id"`
	Messages  []domain.Message `json:"messages"`
	Count     int              `json:"count"`
}

func (s *Server) rpcHistoryGet(rc *RequestContext) {
	if s.chat == nil {
		rc.Fail(fault.New(fault.KindUnavailable, "chat service not configured"))
		return
	}

	var p sessionParams
	if err := rc.Params(&p); err != nil {
		rc.Fail(fault.Invalid("malformed session params"))
		return
	}

	ctx, cancel := context.WithTimeout(rc.Ctx, opTimeout)
	defer cancel()

	msgs, err := s.chat.History(ctx, p.SessionID)
	if err != nil {
		rc.Fail(err)
		return
	}

	rc.Respond(historyResult{
		Status:    okStatus("history fetched"),
		SessionID: p.SessionID,
		Messages:  msgs,
		Count:     len(msgs),
	})
}

type sessionResult struct {
	Status    Status `json:"status"`
	SessionID string `json:"session_id"`
}

func (s *Server) rpcHistoryClear(rc *RequestContext) {
	if s.chat == nil {
		rc.Fail(fault.New(fault.KindUnavailable, "chat service not configured"))
		return
	}

	var p sessionParams
	if err := rc.Params(&p); err != nil {
		rc.Fail(fault.Invalid("malformed session params"))
		return
	}

	ctx, cancel := context.WithTimeout(rc.Ctx, opTimeout)
	defer cancel()

	if err := s.chat.ClearHistory(ctx, p.SessionID); err != nil {
		rc.Fail(err)
		return
	}

	rc.Respond(sessionResult{
		Status:    okStatus("history cleared"),
		SessionID: p.SessionID,
	})
}

type sessionCloseResult struct {
	Status       Status     `json:"status"`
	SessionID    string     `json:"session_id"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	MessageCount int        `json:"message_count"`
}

func (s *Server) rpcSessionClose(rc *RequestContext) {
	if s.chat == nil {
		rc.Fail(fault.New(fault.KindUnavailable, "chat service not configured"))
		return
	}

	var p sessionParams
	if err := rc.Params(&p); err != nil {
		rc.Fail(fault.Invalid("malformed session params"))
		return
	}

	ctx, cancel := context.WithTimeout(rc.Ctx, opTimeout)
	defer cancel()

	sess, err := s.chat.CloseSession(ctx, p.SessionID)
	if err != nil {
		rc.Fail(err)
		return
	}

	rc.Respond(sessionCloseResult{
		Status:       okStatus("session closed"),
		SessionID:    sess.ID,
		ClosedAt:     sess.ClosedAt,
		MessageCount: sess.MessageCount,
	})
}

// --- documents ---

type ingestParams struct {
	Paths []string `json:"paths"`
}

type ingestResult struct {
	Status     Status `json:"status"`
	JobID      string `json:"job_id"`
	JobStatus  string `json:"job_status"`
	TotalFiles int    `json:"total_files"`
}

func (s *Server) rpcDocsIngest(rc *RequestContext) {
	if s.ingest == nil {
		rc.Fail(fault.New(fault.KindUnavailable, "ingestion not configured"))
		return
	}

	var p ingestParams
	if err := rc.Params(&p); err != nil {
		rc.Fail(fault.Invalid("malformed ingest params"))
		return
	}
	if len(p.Paths) == 0 {
		rc.Fail(fault.Invalid("paths must not be empty"))
		return
	}

	job, err := s.ingest.Ingest(p.Paths)
	if err != nil {
		rc.Fail(err)
		return
	}

	rc.Respond(ingestResult{
		Status:     okStatus("ingestion started"),
		JobID:      job.ID,
		JobStatus:  string(job.Status),
		TotalFiles: job.TotalFiles,
	})
}

type jobParams struct {
	JobID string `json:"job_id"`
}

type jobResult struct {
	Status Status               `json:"status"`
	Job    *domain.IngestionJob `json:"job"`
}

func (s *Server) rpcDocsStatus(rc *RequestContext) {
	if s.ingest == nil {
		rc.Fail(fault.New(fault.KindUnavailable, "ingestion not configured"))
		return
	}

	var p jobParams
	if err := rc.Params(&p); err != nil {
		rc.Fail(fault.Invalid("malformed job params"))
		return
	}
	if p.JobID == "" {
		rc.Fail(fault.Invalid("job_id is required"))
		return
	}

	job, err := s.ingest.Job(p.JobID)
	if err != nil {
		rc.Fail(err)
		return
	}
	if job == nil {
		rc.Fail(fault.Invalid("unknown job: " + p.JobID))
		return
	}

	rc.Respond(jobResult{Status: okStatus("job fetched"), Job: job})
}

type docsResult struct {
	Status    Status            `json:"status"`
	Documents []domain.Document `json:"documents"`
	Count     int               `json:"count"`
}

func (s *Server) rpcDocsList(rc *RequestContext) {
	if s.ingest == nil {
		rc.Fail(fault.New(fault.KindUnavailable, "ingestion not configured"))
		return
	}

	docs, err := s.ingest.Documents()
	if err != nil {
		rc.Fail(err)
		return
	}

	rc.Respond(docsResult{
		Status:    okStatus("documents listed"),
		Documents: docs,
		Count:     len(docs),
	})
}

type docDeleteParams struct {
	DocumentID string `json:"document_id"`
}

type docDeleteResult struct {
	Status     Status `json:"status"`
	DocumentID string `json:"document_id"`
}

func (s *Server) rpcDocsDelete(rc *RequestContext) {
	if s.ingest == nil {
		rc.Fail(fault.New(fault.KindUnavailable, "ingestion not configured"))
		return
	}

	var p docDeleteParams
	if err := rc.Params(&p); err != nil {
		rc.Fail(fault.Invalid("malformed delete params"))
		return
	}
	if p.DocumentID == "" {
		rc.Fail(fault.Invalid("document_id is required"))
		return
	}

	ctx, cancel := context.WithTimeout(rc.Ctx, opTimeout)
	defer cancel()

	if err := s.ingest.DeleteDocument(ctx, p.DocumentID); err != nil {
		rc.Fail(err)
		return
	}

	rc.Respond(docDeleteResult{
		Status:     okStatus("document deleted"),
		DocumentID: p.DocumentID,
	})
}

// --- tools ---

type toolsResult struct {
	Status Status          `json:"status"`
	Tools  []agent.ToolDef `json:"tools"`
}

func (s *Server) rpcToolsList(rc *RequestContext) {
	defs := []agent.ToolDef{}
	if s.tools != nil {
		defs = s.tools.Definitions()
	}
	rc.Respond(toolsResult{Status: okStatus("tools listed"), Tools: defs})
}

type toolInvokeParams struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input,omitempty"`
}

type toolInvokeResult struct {
	Status Status          `json:"status"`
	Tool   string          `json:"tool"`
	Output json.RawMessage `json:"output,omitempty"`
}

// rpcToolsInvoke runs one tool directly, outside any conversation. It
// exists for diagnostics; tool failures are echoed rather than masked
// because the caller is debugging the tool itself.
func (s *Server) rpcToolsInvoke(rc *RequestContext) {
	if s.tools == nil {
		rc.Fail(fault.New(fault.KindUnavailable, "tools not configured"))
		return
	}

	var p toolInvokeParams
	if err := rc.Params(&p); err != nil {
		rc.Fail(fault.Invalid("malformed tool params"))
		return
	}
	if p.Tool == "" {
		rc.Fail(fault.Invalid("tool is required"))
		return
	}

	tool, ok := s.tools.Get(p.Tool)
	if !ok {
		rc.Fail(fault.Invalid("unknown tool: " + p.Tool))
		return
	}

	input := "{}"
	if len(p.Input) > 0 {
		input = string(p.Input)
	}

	ctx, cancel := context.WithTimeout(rc.Ctx, toolTimeout)
	defer cancel()

	output, err := tool.Invoke(ctx, input)
	if err != nil {
		rc.Fail(fault.Wrap(fault.KindUnavailable, "tool "+p.Tool+" failed: "+err.Error(), err))
		return
	}

	rc.Respond(toolInvokeResult{
		Status: okStatus("tool invoked"),
		Tool:   p.Tool,
		Output: rawJSON(output),
	})
}

// rawJSON passes valid JSON through untouched and quotes anything else.
func rawJSON(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}
