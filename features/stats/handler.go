package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iskochergin/qletovo/internal/corpus"
	"github.com/iskochergin/qletovo/internal/middleware"
	"github.com/iskochergin/qletovo/internal/settings"
)

type Corpus interface {
	Len() int
	Dim() int
	Manifest() []corpus.ManifestEntry
}

type SettingsReader interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type Handler struct {
	corpus   Corpus
	settings SettingsReader
	listPDFs func() []string
}

// NewHandler reports index and runtime state. listPDFs returns the files
// currently servable by the viewer.
func NewHandler(c Corpus, s SettingsReader, listPDFs func() []string) *Handler {
	return &Handler{corpus: c, settings: s, listPDFs: listPDFs}
}

type StatsResponse struct {
	Chunks    int                `json:"chunks"`
	Dimension int                `json:"dimension"`
	Documents int                `json:"documents"`
	Files     int                `json:"files"`
	Settings  *settings.Settings `json:"settings,omitempty"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "getting stats")

	resp := StatsResponse{
		Chunks:    h.corpus.Len(),
		Dimension: h.corpus.Dim(),
		Documents: len(h.corpus.Manifest()),
	}
	if h.listPDFs != nil {
		resp.Files = len(h.listPDFs())
	}

	if h.settings != nil {
		set, err := h.settings.Get(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to read settings", "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to read settings", http.StatusInternalServerError)
			return
		}
		resp.Settings = set
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
