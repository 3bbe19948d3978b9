package ask

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iskochergin/qletovo/internal/middleware"
	"github.com/iskochergin/qletovo/internal/quota"
	"github.com/iskochergin/qletovo/internal/rag"
)

const unavailableMessage = "Сервис временно недоступен. Попробуйте позже."

type Answerer interface {
	Answer(ctx context.Context, question, baseURL string, temperature float32) (*rag.Result, error)
	Manifest(baseURL string) []rag.ManifestItem
}

type Limiter interface {
	Allow(key string) quota.Decision
}

type Request struct {
	Question    string   `json:"question" validate:"required,max=2000"`
	Temperature *float32 `json:"temperature" validate:"omitempty,gte=0,lte=2"`
}

type Response struct {
	Text    string       `json:"text"`
	Answer  rag.Answer   `json:"answer"`
	Sources []rag.Source `json:"sources"`
	Status  rag.Status   `json:"status"`
}

type Handler struct {
	svc      Answerer
	limiter  Limiter
	timeout  time.Duration
	validate *validator.Validate
}

// NewHandler serves questions. limiter may be nil; a zero timeout leaves
// the request context untouched.
func NewHandler(svc Answerer, limiter Limiter, timeout time.Duration) *Handler {
	return &Handler{svc: svc, limiter: limiter, timeout: timeout, validate: validator.New()}
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if fields := h.validationErrors(&req); fields != nil {
		h.writeJSON(ctx, w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error": map[string]interface{}{
				"code":    "VALIDATION_ERROR",
				"message": "validation failed",
				"fields":  fields,
			},
			"correlationId": middleware.GetCorrelationID(ctx),
		})
		return
	}

	if h.limiter != nil {
		key := middleware.ClientKey(r)
		if d := h.limiter.Allow(key); !d.Allowed {
			h.writeRateLimited(ctx, w, d)
			return
		}
	}

	var temperature float32
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.svc.Answer(ctx, req.Question, middleware.BaseURL(r), temperature)
	if err != nil {
		slog.ErrorContext(ctx, "answer failed", "error", err, "correlationId", middleware.GetCorrelationID(ctx))
		h.writeError(ctx, w, "SERVICE_UNAVAILABLE", unavailableMessage, http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, Response{
		Text:    res.DisplayText(),
		Answer:  res.Answer,
		Sources: res.Sources,
		Status:  res.Status,
	})
}

func (h *Handler) Manifest(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(r.Context(), w, http.StatusOK, h.svc.Manifest(middleware.BaseURL(r)))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) validationErrors(req *Request) map[string]string {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"request": err.Error()}
	}
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[strings.ToLower(e.Field())] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return out
}

func (h *Handler) writeRateLimited(ctx context.Context, w http.ResponseWriter, d quota.Decision) {
	seconds := int(math.Ceil(d.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	message := fmt.Sprintf("Слишком частые запросы. Повторите через %d с.", seconds)
	if d.Reason == quota.ReasonDaily {
		message = "Дневной лимит запросов исчерпан. Попробуйте завтра."
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	h.writeJSON(ctx, w, http.StatusTooManyRequests, map[string]interface{}{
		"error": map[string]string{
			"code":    "RATE_LIMITED",
			"message": message,
		},
		"reason":              d.Reason,
		"retry_after_seconds": seconds,
		"correlationId":       middleware.GetCorrelationID(ctx),
	})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
