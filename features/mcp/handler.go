package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/iskochergin/qletovo/internal/middleware"
	"github.com/iskochergin/qletovo/internal/rag"
)

const (
	ToolAsk           = "letovo_ask"
	ToolListDocuments = "letovo_list_documents"
)

type Answerer interface {
	Answer(ctx context.Context, question, baseURL string, temperature float32) (*rag.Result, error)
	Manifest(baseURL string) []rag.ManifestItem
}

type Handler struct {
	svc     Answerer
	timeout time.Duration
}

func NewHandler(svc Answerer, timeout time.Duration) *Handler {
	return &Handler{svc: svc, timeout: timeout}
}

// JSON-RPC Request types
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type AskArgs struct {
	Question    string   `json:"question"`
	Temperature *float32 `json:"temperature,omitempty"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// JSON-RPC Response
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

var tools = []Tool{
	{
		Name: ToolAsk,
		Description: `Answers a question about Letovo school documents using only the indexed PDFs. The reply lists the cited documents with page links.
USAGE EXAMPLE:
letovo_ask(question="Какие документы нужны для поступления?")`,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"question": map[string]string{
					"type":        "string",
					"description": "The question in natural language",
				},
				"temperature": map[string]interface{}{
					"type":        "number",
					"description": "Sampling temperature between 0 and 2 (default 0)",
				},
			},
			"required": []string{"question"},
		},
	},
	{
		Name:        ToolListDocuments,
		Description: "Lists the documents available to letovo_ask with their viewer links.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	},
}

// processRequest returns nil for notifications.
func (h *Handler) processRequest(ctx context.Context, req JSONRPCRequest, baseURL string) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
				"serverInfo": map[string]interface{}{
					"name":    "letovo-mcp",
					"version": "1.0.0",
				},
			},
		}
	case "notifications/initialized":
		return nil
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: tools}}
	case "tools/call":
		var params CallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			slog.WarnContext(ctx, "invalid params structure", "error", err)
			return makeErrorResponse(req.ID, ErrInvalidParams, "Invalid params")
		}
		switch params.Name {
		case ToolAsk:
			return h.callAsk(ctx, req.ID, params.Arguments, baseURL)
		case ToolListDocuments:
			return h.callListDocuments(ctx, req.ID, baseURL)
		}
		slog.WarnContext(ctx, "tool not found", "tool", params.Name)
		return makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found: "+params.Name)
	}

	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	return makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found")
}

func (h *Handler) callAsk(ctx context.Context, id interface{}, raw json.RawMessage, baseURL string) *JSONRPCResponse {
	var args AskArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			slog.WarnContext(ctx, "invalid ask arguments", "error", err)
			return makeErrorResponse(id, ErrInvalidParams, "Invalid ask arguments")
		}
	}
	args.Question = strings.TrimSpace(args.Question)
	if args.Question == "" {
		return makeErrorResponse(id, ErrInvalidParams, "Question is required")
	}
	var temperature float32
	if args.Temperature != nil {
		if *args.Temperature < 0 || *args.Temperature > 2 {
			return makeErrorResponse(id, ErrInvalidParams, "Temperature must be between 0 and 2")
		}
		temperature = *args.Temperature
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.svc.Answer(ctx, args.Question, baseURL, temperature)
	if err != nil {
		slog.ErrorContext(ctx, "ask tool failed", "error", err)
		return toolResponse(id, "Error: "+err.Error(), true)
	}
	slog.InfoContext(ctx, "tool execution completed", "tool", ToolAsk, "status", res.Status, "sources", len(res.Sources))
	return toolResponse(id, res.DisplayText(), false)
}

func (h *Handler) callListDocuments(ctx context.Context, id interface{}, baseURL string) *JSONRPCResponse {
	items := h.svc.Manifest(baseURL)
	if len(items) == 0 {
		return toolResponse(id, "No documents found.", false)
	}
	jsonBytes, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal documents", "error", err)
		return toolResponse(id, "Error marshalling results", true)
	}
	slog.InfoContext(ctx, "tool execution completed", "tool", ToolListDocuments, "documents", len(items))
	return toolResponse(id, string(jsonBytes), false)
}

func toolResponse(id interface{}, text string, isError bool) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: ToolResult{
			Content: []ToolContent{{Type: "text", Text: text}},
			IsError: isError,
		},
	}
}

func makeErrorResponse(id interface{}, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "mcp request received", "method", r.Method, "path", r.URL.Path)

	var req JSONRPCRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeResponse(ctx, w, makeErrorResponse(nil, ErrParse, "Parse error"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		h.writeResponse(ctx, w, makeErrorResponse(req.ID, ErrInvalidRequest, "Invalid Request"))
		return
	}

	resp := h.processRequest(ctx, req, middleware.BaseURL(r))
	if resp == nil {
		// Notification, just return OK
		w.WriteHeader(http.StatusOK)
		return
	}
	h.writeResponse(ctx, w, resp)
}

func (h *Handler) writeResponse(ctx context.Context, w http.ResponseWriter, resp *JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode jsonrpc response", "error", err)
	}
}
