package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ToughForge/EspoMCP/internal/audit"
	"github.com/ToughForge/EspoMCP/internal/router"
	"github.com/ToughForge/EspoMCP/internal/server/events"
	"github.com/ToughForge/EspoMCP/internal/session"
	"github.com/ToughForge/EspoMCP/internal/tools"
)

// exchange is the state of one POST: the session or cached toolset
// the messages run against.
type exchange struct {
	apiKey  string
	session *session.Session
	toolset *session.Toolset
	caller  string
}

func (s *Server) handlePost(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(nil, CodeParseError, "Parse error: "+err.Error()))
		return
	}
	msgs, batch, err := decodeMessages(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(nil, CodeParseError, "Parse error: "+err.Error()))
		return
	}
	if batch && len(msgs) == 0 {
		c.Status(http.StatusAccepted)
		return
	}

	ex := &exchange{apiKey: c.GetHeader(HeaderAPIKey)}
	if ex.apiKey == "" {
		ex.apiKey = s.config.DefaultAPIKey
	}

	if s.config.Mode == ModeSession {
		if status, resp := s.bindSession(c, ex, msgs); resp != nil {
			c.JSON(status, resp)
			return
		}
	}

	ctx := c.Request.Context()
	responses := make([]*JSONRPCResponse, 0, len(msgs))
	for _, req := range msgs {
		if resp := s.dispatch(ctx, ex, req); resp != nil {
			responses = append(responses, resp)
		}
	}

	if ex.session != nil {
		c.Header(HeaderSessionID, ex.session.ID)
	}
	s.deliver(c, responses)
}

// bindSession attaches the session named by the request header. It
// returns an error body when the batch cannot run. A batch carrying
// initialize may run without a session; initialize creates one.
func (s *Server) bindSession(c *gin.Context, ex *exchange, msgs []*JSONRPCRequest) (int, interface{}) {
	initializing := false
	for _, m := range msgs {
		if m != nil && m.Method == MethodInitialize {
			initializing = true
			break
		}
	}

	id := c.GetHeader(HeaderSessionID)
	if id == "" {
		if initializing {
			return 0, nil
		}
		return http.StatusBadRequest, errorResponse(nil, CodeInvalidRequest, "Bad Request: missing "+HeaderSessionID+" header")
	}

	sess, err := s.sessions.Get(id)
	if err == nil {
		ex.session = sess
		ex.toolset = sess.Toolset()
		ex.caller = sess.ID
		return 0, nil
	}
	if initializing {
		return 0, nil
	}

	// Unknown session: every request in the batch gets its own error.
	var out []*JSONRPCResponse
	for _, m := range msgs {
		if m != nil && !m.IsNotification() {
			out = append(out, errorResponse(m.ID, CodeSessionNotFound, "Session not found"))
		}
	}
	if len(out) > 1 {
		return http.StatusNotFound, out
	}
	return http.StatusNotFound, errorResponse(firstID(out), CodeSessionNotFound, "Session not found")
}

func firstID(out []*JSONRPCResponse) json.RawMessage {
	if len(out) == 0 {
		return nil
	}
	return out[0].ID
}

// deliver writes responses as a JSON body or as SSE events, per the
// Accept header. No responses means 202.
func (s *Server) deliver(c *gin.Context, responses []*JSONRPCResponse) {
	if len(responses) == 0 {
		c.Status(http.StatusAccepted)
		return
	}

	if prefersEventStream(c.GetHeader("Accept")) {
		events.SetHeaders(c.Writer)
		c.Status(http.StatusOK)
		for _, resp := range responses {
			if err := events.Write(c.Writer, c.Writer, events.NewEvent(events.EventMessage, resp)); err != nil {
				s.log.Warnw("sse write failed", "error", err)
				return
			}
		}
		return
	}

	if len(responses) == 1 {
		c.JSON(http.StatusOK, responses[0])
		return
	}
	c.JSON(http.StatusOK, responses)
}

// dispatch handles one message. It returns nil for notifications.
func (s *Server) dispatch(ctx context.Context, ex *exchange, req *JSONRPCRequest) *JSONRPCResponse {
	if !valid(req) {
		if req != nil && req.Method != "" && req.IsNotification() {
			s.log.Debugw("invalid notification dropped", "method", req.Method, "jsonrpc", req.JSONRPC)
			return nil
		}
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		return errorResponse(id, CodeInvalidRequest, "Invalid Request")
	}

	if req.IsNotification() {
		s.notify(ex, req)
		return nil
	}

	switch req.Method {
	case MethodInitialize:
		return s.initialize(ctx, ex, req)

	case MethodPing:
		return resultResponse(req.ID, struct{}{})

	case MethodToolsList:
		ts, rpcErr := s.toolset(ctx, ex)
		if rpcErr != nil {
			return &JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: req.ID, Error: rpcErr}
		}
		return resultResponse(req.ID, toolList(ts.Operations))

	case MethodToolsCall:
		var params ToolsCallParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return errorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
			}
		}
		if params.Name == "" {
			return errorResponse(req.ID, CodeInvalidParams, "Invalid params: missing tool name")
		}
		ts, rpcErr := s.toolset(ctx, ex)
		if rpcErr != nil {
			return &JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: req.ID, Error: rpcErr}
		}
		return resultResponse(req.ID, s.callTool(ctx, ex, ts, params))
	}

	return errorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method)
}

func (s *Server) notify(ex *exchange, req *JSONRPCRequest) {
	switch req.Method {
	case MethodInitialized:
		if ex.session != nil {
			ex.session.MarkReady()
			s.log.Debugw("session ready", "session", ex.session.ID)
		}
	default:
		s.log.Debugw("notification ignored", "method", req.Method)
	}
}

func (s *Server) initialize(ctx context.Context, ex *exchange, req *JSONRPCRequest) *JSONRPCResponse {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
		}
	}

	switch s.config.Mode {
	case ModeStateless:
		if _, rpcErr := s.toolset(ctx, ex); rpcErr != nil {
			return &JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: req.ID, Error: rpcErr}
		}
	default:
		sess, err := s.sessions.Initialize(ctx, ex.apiKey)
		if err != nil {
			s.log.Warnw("session initialization failed", "error", err)
			return errorResponse(req.ID, CodeInternalError, "Initialization failed: "+err.Error())
		}
		ex.session = sess
		ex.toolset = sess.Toolset()
		ex.caller = sess.ID
	}

	client := ""
	if params.ClientInfo != nil {
		client = params.ClientInfo.Name
	}
	version := NegotiateVersion(params.ProtocolVersion)
	s.log.Infow("client initialized", "client", client, "requested", params.ProtocolVersion, "version", version)

	return resultResponse(req.ID, InitializeResult{
		ProtocolVersion: version,
		Capabilities: ServerCapabilities{
			Tools:   &ToolsCapability{},
			Logging: &struct{}{},
		},
		ServerInfo: Implementation{Name: ServerName, Version: s.config.Version},
	})
}

// toolset returns the toolset the exchange runs against, acquiring it
// from the credential cache in stateless mode.
func (s *Server) toolset(ctx context.Context, ex *exchange) (*session.Toolset, *RPCError) {
	if ex.toolset != nil {
		return ex.toolset, nil
	}
	if s.config.Mode != ModeStateless {
		return nil, &RPCError{Code: CodeSessionNotFound, Message: "Session not found"}
	}

	entry, err := s.credentials.Acquire(ctx, ex.apiKey)
	if err != nil {
		s.log.Warnw("credential toolset failed", "error", err)
		return nil, &RPCError{Code: CodeInternalError, Message: "Initialization failed: " + err.Error()}
	}
	ex.toolset = entry.Toolset
	ex.caller = entry.Key[:12]
	return ex.toolset, nil
}

// callTool runs one tool: synthesized operations first, then the
// utilities. Failures are results, never protocol errors.
func (s *Server) callTool(ctx context.Context, ex *exchange, ts *session.Toolset, params ToolsCallParams) ToolsCallResult {
	start := time.Now()

	var (
		res router.Result
		op  tools.Operation
	)
	if resolved, ok := ts.Router.Resolve(params.Name); ok {
		op = resolved
		res = ts.Router.Execute(ctx, op, params.Arguments)
	} else if r, ok := ts.Router.CallUtility(ctx, params.Name, params.Arguments); ok {
		res = r
	} else {
		res = router.Result{Text: (&router.UnknownToolError{Name: params.Name}).Error(), IsError: true}
	}
	elapsed := time.Since(start)

	s.log.Infow("tool call",
		"tool", params.Name,
		"caller", ex.caller,
		"error", res.IsError,
		"elapsed", elapsed)

	if s.recorder != nil {
		call := audit.Call{
			Caller:    ex.caller,
			Tool:      params.Name,
			Action:    string(op.Action),
			Entity:    op.Entity,
			IsError:   res.IsError,
			Duration:  elapsed,
			CreatedAt: start,
		}
		if err := s.recorder.Record(ctx, call); err != nil {
			s.log.Warnw("audit record failed", "tool", params.Name, "error", err)
		}
	}

	if ex.session != nil {
		level := "info"
		if res.IsError {
			level = "error"
		}
		ex.session.Broadcast(events.NewLogMessage(level, ServerName, map[string]interface{}{
			"tool":       params.Name,
			"isError":    res.IsError,
			"durationMs": elapsed.Milliseconds(),
		}))
	}

	return callResult(res)
}

// handleStream opens the session's push stream.
func (s *Server) handleStream(c *gin.Context) {
	if s.config.Mode == ModeStateless {
		c.JSON(http.StatusMethodNotAllowed, errorResponse(nil, CodeInvalidRequest, "Method not allowed in stateless mode"))
		return
	}
	sess, status, resp := s.lookupSession(c)
	if resp != nil {
		c.JSON(status, resp)
		return
	}

	l := events.NewListener(uuid.NewString(), 64)
	if !sess.AddListener(l) {
		c.JSON(http.StatusNotFound, errorResponse(nil, CodeSessionNotFound, "Session not found"))
		return
	}
	defer sess.RemoveListener(l.ID)

	hello := events.NewEvent(events.EventConnectionEstablished, events.ConnectionData{
		SessionID:  sess.ID,
		ListenerID: l.ID,
		Timestamp:  time.Now(),
	}).WithSession(sess.ID)

	c.Header(HeaderSessionID, sess.ID)
	s.log.Debugw("push stream opened", "session", sess.ID, "listener", l.ID)
	if err := events.Stream(c.Request.Context(), c.Writer, l, s.config.KeepAlive, hello); err != nil {
		s.log.Debugw("push stream ended", "session", sess.ID, "error", err)
	}
}

// handleDelete terminates a session.
func (s *Server) handleDelete(c *gin.Context) {
	if s.config.Mode == ModeStateless {
		c.JSON(http.StatusMethodNotAllowed, errorResponse(nil, CodeInvalidRequest, "Method not allowed in stateless mode"))
		return
	}
	id := c.GetHeader(HeaderSessionID)
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse(nil, CodeInvalidRequest, "Bad Request: missing "+HeaderSessionID+" header"))
		return
	}
	if err := s.sessions.Terminate(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse(nil, CodeSessionNotFound, "Session not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse(nil, CodeInternalError, fmt.Sprintf("terminate: %v", err)))
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) lookupSession(c *gin.Context) (*session.Session, int, *JSONRPCResponse) {
	id := c.GetHeader(HeaderSessionID)
	if id == "" {
		return nil, http.StatusBadRequest, errorResponse(nil, CodeInvalidRequest, "Bad Request: missing "+HeaderSessionID+" header")
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, http.StatusNotFound, errorResponse(nil, CodeSessionNotFound, "Session not found")
	}
	return sess, 0, nil
}
