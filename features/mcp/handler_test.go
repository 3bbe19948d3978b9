package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iskochergin/qletovo/internal/rag"
)

type MockAnswerer struct{ mock.Mock }

func (m *MockAnswerer) Answer(ctx context.Context, question, baseURL string, temperature float32) (*rag.Result, error) {
	args := m.Called(ctx, question, baseURL, temperature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rag.Result), args.Error(1)
}

func (m *MockAnswerer) Manifest(baseURL string) []rag.ManifestItem {
	return m.Called(baseURL).Get(0).([]rag.ManifestItem)
}

type rpcResult struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func call(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, rpcResult) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "http://api.local/mcp", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out rpcResult
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func toolResult(t *testing.T, raw json.RawMessage) ToolResult {
	t.Helper()
	var tr ToolResult
	require.NoError(t, json.Unmarshal(raw, &tr))
	require.Len(t, tr.Content, 1)
	return tr
}

func TestServeHTTP_Initialize(t *testing.T) {
	h := NewHandler(new(MockAnswerer), 0)
	w, resp := call(t, h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, resp.Error)
	assert.Equal(t, float64(1), resp.ID)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
	info := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, "letovo-mcp", info["name"])
}

func TestServeHTTP_NotificationHasNoBody(t *testing.T) {
	h := NewHandler(new(MockAnswerer), 0)
	w, _ := call(t, h, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestServeHTTP_ToolsList(t *testing.T) {
	h := NewHandler(new(MockAnswerer), 0)
	_, resp := call(t, h, `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`)

	var result ListToolsResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Tools, 2)
	assert.Equal(t, ToolAsk, result.Tools[0].Name)
	assert.Equal(t, ToolListDocuments, result.Tools[1].Name)
}

func TestServeHTTP_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"jsonrpc":`, ErrParse},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"tools/list"}`, ErrInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, ErrInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, ErrMethodNotFound},
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search_documents"}}`, ErrMethodNotFound},
		{"bad params", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":[1]}`, ErrInvalidParams},
		{"empty question", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"letovo_ask","arguments":{"question":"  "}}}`, ErrInvalidParams},
		{"temperature out of range", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"letovo_ask","arguments":{"question":"Q","temperature":3}}}`, ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(new(MockAnswerer), 0)
			_, resp := call(t, h, tt.body)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestServeHTTP_Ask(t *testing.T) {
	svc := new(MockAnswerer)
	h := NewHandler(svc, time.Minute)

	svc.On("Answer", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), "Сколько стоит обучение?", "http://api.local/", float32(0.2)).Return(&rag.Result{
		Answer:  rag.TextAnswer("Стоимость указана в договоре."),
		Sources: []rag.Source{{Title: "Договор", Page: 3, URL: "http://api.local/viewer/contract.pdf?page=3"}},
		Status:  rag.StatusAnswerable,
	}, nil)

	_, resp := call(t, h, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"letovo_ask","arguments":{"question":" Сколько стоит обучение? ","temperature":0.2}}}`)

	require.Nil(t, resp.Error)
	tr := toolResult(t, resp.Result)
	assert.False(t, tr.IsError)
	assert.Equal(t, "text", tr.Content[0].Type)
	assert.Contains(t, tr.Content[0].Text, "Стоимость указана в договоре.")
	assert.Contains(t, tr.Content[0].Text, "[Договор](http://api.local/viewer/contract.pdf?page=3)")
	svc.AssertExpectations(t)
}

func TestServeHTTP_AskFailureIsToolError(t *testing.T) {
	svc := new(MockAnswerer)
	h := NewHandler(svc, 0)
	svc.On("Answer", mock.Anything, "Q", "http://api.local/", float32(0)).Return(nil, errors.New("complete: upstream down"))

	_, resp := call(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"letovo_ask","arguments":{"question":"Q"}}}`)

	require.Nil(t, resp.Error)
	tr := toolResult(t, resp.Result)
	assert.True(t, tr.IsError)
	assert.Contains(t, tr.Content[0].Text, "upstream down")
}

func TestServeHTTP_ListDocuments(t *testing.T) {
	t.Run("Documents", func(t *testing.T) {
		svc := new(MockAnswerer)
		h := NewHandler(svc, 0)
		svc.On("Manifest", "http://api.local/").Return([]rag.ManifestItem{
			{DocID: "d1", Title: "Устав", LocalName: "ustav.pdf", URL: "http://api.local/viewer/ustav.pdf"},
		})

		_, resp := call(t, h, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"letovo_list_documents"}}`)

		tr := toolResult(t, resp.Result)
		var items []rag.ManifestItem
		require.NoError(t, json.Unmarshal([]byte(tr.Content[0].Text), &items))
		require.Len(t, items, 1)
		assert.Equal(t, "ustav.pdf", items[0].LocalName)
	})

	t.Run("Empty", func(t *testing.T) {
		svc := new(MockAnswerer)
		h := NewHandler(svc, 0)
		svc.On("Manifest", "http://api.local/").Return([]rag.ManifestItem{})

		_, resp := call(t, h, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"letovo_list_documents"}}`)

		tr := toolResult(t, resp.Result)
		assert.Equal(t, "No documents found.", tr.Content[0].Text)
	})
}
