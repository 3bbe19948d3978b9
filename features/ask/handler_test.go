package ask_test

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

	"github.com/iskochergin/qletovo/features/ask"
	"github.com/iskochergin/qletovo/internal/quota"
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

type stubLimiter struct{ decision quota.Decision }

func (s stubLimiter) Allow(string) quota.Decision { return s.decision }

func post(t *testing.T, h *ask.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "http://api.local/ask", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.Ask(w, req)
	return w
}

func TestHandler_Ask(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc := new(MockAnswerer)
		h := ask.NewHandler(svc, nil, time.Minute)

		svc.On("Answer", mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		}), "Когда день открытых дверей?", "http://api.local/", float32(0.5)).Return(&rag.Result{
			Answer:  rag.TextAnswer("В субботу."),
			Sources: []rag.Source{{Title: "Календарь", Page: 2, URL: "http://api.local/viewer/cal.pdf?page=2"}},
			Status:  rag.StatusAnswerable,
		}, nil)

		w := post(t, h, `{"question": "  Когда день открытых дверей? ", "temperature": 0.5}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "В субботу.", resp["answer"])
		assert.Equal(t, "answerable", resp["status"])
		assert.Equal(t, "В субботу.\n\nДокументы:\n• [Календарь](http://api.local/viewer/cal.pdf?page=2) — стр. 2", resp["text"])
		assert.Len(t, resp["sources"], 1)
		svc.AssertExpectations(t)
	})

	t.Run("DefaultTemperature", func(t *testing.T) {
		svc := new(MockAnswerer)
		svc.On("Answer", mock.Anything, "q", mock.Anything, float32(0)).
			Return(&rag.Result{Answer: rag.ListAnswer("a"), Sources: []rag.Source{}, Status: rag.StatusAnswerable}, nil)

		w := post(t, ask.NewHandler(svc, nil, 0), `{"question": "q"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"answer":["a"]`)
		svc.AssertExpectations(t)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		svc := new(MockAnswerer)
		w := post(t, ask.NewHandler(svc, nil, 0), `{"question":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Validation", func(t *testing.T) {
		tests := map[string]string{
			"missing question":     `{}`,
			"blank question":       `{"question": "   "}`,
			"temperature too high": `{"question": "q", "temperature": 3}`,
		}
		for name, body := range tests {
			t.Run(name, func(t *testing.T) {
				svc := new(MockAnswerer)
				w := post(t, ask.NewHandler(svc, nil, 0), body)
				assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

				var resp map[string]interface{}
				require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
				errBody := resp["error"].(map[string]interface{})
				assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
				svc.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("RateLimited", func(t *testing.T) {
		svc := new(MockAnswerer)
		limiter := stubLimiter{quota.Decision{Reason: quota.ReasonRate, RetryAfter: 2500 * time.Millisecond}}

		w := post(t, ask.NewHandler(svc, limiter, 0), `{"question": "q"}`)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "3", w.Header().Get("Retry-After"))

		var resp map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, float64(3), resp["retry_after_seconds"])
		assert.Equal(t, "rate", resp["reason"])
		svc.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("DailyLimit", func(t *testing.T) {
		limiter := stubLimiter{quota.Decision{Reason: quota.ReasonDaily, RetryAfter: time.Hour}}
		w := post(t, ask.NewHandler(new(MockAnswerer), limiter, 0), `{"question": "q"}`)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "Дневной лимит")
	})

	t.Run("TransportFailure", func(t *testing.T) {
		svc := new(MockAnswerer)
		svc.On("Answer", mock.Anything, "q", mock.Anything, float32(0)).Return(nil, errors.New("deadline exceeded"))
		limiter := stubLimiter{quota.Decision{Allowed: true, Remaining: 5}}

		w := post(t, ask.NewHandler(svc, limiter, time.Second), `{"question": "q"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		errBody := resp["error"].(map[string]interface{})
		assert.Equal(t, "SERVICE_UNAVAILABLE", errBody["code"])
		assert.Equal(t, "Сервис временно недоступен. Попробуйте позже.", errBody["message"])
		assert.Contains(t, resp, "correlationId")
	})
}

func TestHandler_Manifest(t *testing.T) {
	svc := new(MockAnswerer)
	svc.On("Manifest", "http://api.local/").Return([]rag.ManifestItem{
		{DocID: "1", Title: "Устав", LocalName: "charter.pdf", URL: "http://api.local/viewer/charter.pdf"},
	})

	req := httptest.NewRequest("GET", "http://api.local/manifest", nil)
	w := httptest.NewRecorder()
	ask.NewHandler(svc, nil, 0).Manifest(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"doc_id": "1", "title": "Устав", "local_name": "charter.pdf", "url": "http://api.local/viewer/charter.pdf"}]`, w.Body.String())
}

func TestHandler_Health(t *testing.T) {
	w := httptest.NewRecorder()
	ask.NewHandler(new(MockAnswerer), nil, 0).Health(w, httptest.NewRequest("GET", "/health", nil))
	assert.JSONEq(t, `{"ok": true}`, w.Body.String())
}
