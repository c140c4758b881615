package gateway

import (
	"context"
	"encoding/json"
	"net/http"
)

// handleHealth answers the public HTTP health probe. Only a bare status
// is exposed here; component detail requires the authenticated RPC.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleNotFound answers unrouted paths with a JSON 404 so API clients
// never have to parse an HTML error page.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// RequestHandler is the signature every RPC method implements.
type RequestHandler func(rc *RequestContext)

// RequestContext carries everything a handler needs: the caller, the
// request frame, a context that dies with the connection, and the
// correlation ID that ties wire responses to log entries.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
	CorrID string

	// wire code of the response actually sent, for instrumentation
	code int
}

// Respond completes the request with an OK frame.
func (rc *RequestContext) Respond(payload any) {
	rc.code = 200
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// Fail classifies err, logs the raw detail under the correlation ID, and
// sends the caller a response carrying only the safe message.
func (rc *RequestContext) Fail(err error) {
	st, shape := rc.Server.failure(rc.CorrID, rc.Frame.Method, err)
	rc.code = st.Code
	if sendErr := rc.Client.RespondError(rc.Frame.ID, st, shape); sendErr != nil {
		rc.Server.log.Warn().Err(sendErr).Str("method", rc.Frame.Method).Msg("failed to send error response")
	}
}

// Params decodes the request's params into target. A request carrying
// no params leaves target at its zero value.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
