package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ToughForge/EspoMCP/internal/router"
	"github.com/ToughForge/EspoMCP/internal/tools"
)

// MCP JSON-RPC 2.0 types
const JSONRPCVersion = "2.0"

// JSON-RPC error codes.
const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodeSessionNotFound = -32001
)

// Protocol methods.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
	MethodPing        = "ping"
)

// LatestProtocolVersion is answered when the client asks for a version
// this server does not speak.
const LatestProtocolVersion = "2025-06-18"

// SupportedProtocolVersions lists every version echoed back as-is.
var SupportedProtocolVersions = []string{"2024-11-05", "2025-03-26", LatestProtocolVersion}

// NegotiateVersion returns requested when supported, else the latest.
func NegotiateVersion(requested string) string {
	for _, v := range SupportedProtocolVersions {
		if v == requested {
			return v
		}
	}
	return LatestProtocolVersion
}

// JSONRPCRequest is one inbound message. Notifications carry no id.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the message expects no answer.
func (r *JSONRPCRequest) IsNotification() bool {
	return len(r.ID) == 0
}

type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func resultResponse(id json.RawMessage, result interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *JSONRPCResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// MCP Protocol types
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ClientInfo      *Implementation `json:"clientInfo,omitempty"`
}

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ServerCapabilities struct {
	Tools   *ToolsCapability `json:"tools,omitempty"`
	Logging *struct{}        `json:"logging,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

type Tool struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	InputSchema tools.InputSchema `json:"inputSchema"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

type ToolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ToolsCallResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError"`
}

func toolList(ops []tools.OperationSchema) ToolsListResult {
	list := make([]Tool, 0, len(ops))
	for _, op := range ops {
		list = append(list, Tool{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: op.InputSchema(),
		})
	}
	return ToolsListResult{Tools: list}
}

func callResult(res router.Result) ToolsCallResult {
	return ToolsCallResult{
		Content: []ContentItem{{Type: "text", Text: res.Text}},
		IsError: res.IsError,
	}
}

// decodeMessages splits a POST body into messages. batch is true when
// the body is a JSON array. Elements that are not request objects are
// returned as nil entries so they can be answered in position.
func decodeMessages(body []byte) (msgs []*JSONRPCRequest, batch bool, err error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty body")
	}

	if trimmed[0] != '[' {
		var req JSONRPCRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return nil, false, err
		}
		return []*JSONRPCRequest{&req}, false, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, true, err
	}
	msgs = make([]*JSONRPCRequest, len(raw))
	for i, m := range raw {
		var req JSONRPCRequest
		if json.Unmarshal(m, &req) == nil {
			msgs[i] = &req
		}
	}
	return msgs, true, nil
}

// valid reports whether req is a well-formed JSON-RPC 2.0 message.
func valid(req *JSONRPCRequest) bool {
	return req != nil && req.JSONRPC == JSONRPCVersion && req.Method != ""
}

// prefersEventStream applies the Accept header: text/event-stream wins
// when its quality is higher than application/json, or equal and
// listed first.
func prefersEventStream(accept string) bool {
	sseQ, sseAt := -1.0, -1
	jsonQ, jsonAt := -1.0, -1

	for i, part := range strings.Split(accept, ",") {
		mediaType, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		q := 1.0
		for _, p := range strings.Split(params, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if ok && strings.EqualFold(k, "q") {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					q = f
				}
			}
		}
		switch strings.ToLower(strings.TrimSpace(mediaType)) {
		case "text/event-stream":
			if sseAt < 0 {
				sseQ, sseAt = q, i
			}
		case "application/json":
			if jsonAt < 0 {
				jsonQ, jsonAt = q, i
			}
		}
	}

	if sseAt < 0 || sseQ <= 0 {
		return false
	}
	if jsonAt < 0 || sseQ > jsonQ {
		return true
	}
	return sseQ == jsonQ && sseAt < jsonAt
}
