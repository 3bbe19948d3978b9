package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iskochergin/qletovo/internal/corpus"
	"github.com/iskochergin/qletovo/internal/settings"
)

type MockSettings struct{ mock.Mock }

func (m *MockSettings) Get(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

func newCorpus(t *testing.T) *corpus.Store {
	t.Helper()
	store, err := corpus.New(
		[]corpus.Chunk{
			{Text: "a", DocID: "d1", Page: 1},
			{Text: "b", DocID: "d1", Page: 2},
			{Text: "c", DocID: "d2", Page: 1},
		},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[]corpus.ManifestEntry{{DocID: "d1", Title: "Устав"}, {DocID: "d2", Title: "Правила"}},
	)
	require.NoError(t, err)
	return store
}

func TestHandler_GetStats_Table(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(*MockSettings)
		wantStatus int
		wantError  bool
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name: "Success",
			setupMocks: func(s *MockSettings) {
				s.On("Get", mock.Anything).Return(&settings.Settings{TopK: 12, BestK: 6, PageWindow: 1, MaxSnippet: 1200, SourceLimit: 3}, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.EqualValues(t, 3, data["chunks"])
				assert.EqualValues(t, 3, data["dimension"])
				assert.EqualValues(t, 2, data["documents"])
				assert.EqualValues(t, 1, data["files"])
				set := data["settings"].(map[string]interface{})
				assert.EqualValues(t, 12, set["top_k"])
			},
		},
		{
			name: "Settings Error",
			setupMocks: func(s *MockSettings) {
				s.On("Get", mock.Anything).Return(nil, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mSettings := new(MockSettings)
			tt.setupMocks(mSettings)

			h := NewHandler(newCorpus(t), mSettings, func() []string { return []string{"ustav.pdf"} })
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()

			h.GetStats(w, req)

			resp := w.Result()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]interface{}
			err := json.NewDecoder(resp.Body).Decode(&body)
			assert.NoError(t, err)

			if tt.wantError {
				assert.Contains(t, body, "error")
				errMap := body["error"].(map[string]interface{})
				assert.Equal(t, "INTERNAL_ERROR", errMap["code"])
			} else {
				tt.checkBody(t, body)
			}
		})
	}
}

func TestHandler_GetStats_WithoutSettings(t *testing.T) {
	h := NewHandler(newCorpus(t), nil, nil)
	w := httptest.NewRecorder()
	h.GetStats(w, httptest.NewRequest("GET", "/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "settings")
	assert.Contains(t, w.Body.String(), `"files":0`)
}
