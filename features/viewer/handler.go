package viewer

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iskochergin/qletovo/internal/docs"
	"github.com/iskochergin/qletovo/internal/middleware"
)

const siteTitle = "Документы «Летово»"

//go:embed templates/*.html
var templatesFS embed.FS

type indexItem struct {
	Name string
	Href string
}

// Handler serves the document index, the page-anchored viewer and the raw
// files from the document directory.
type Handler struct {
	resolver *docs.Resolver
	index    *template.Template
	viewer   *template.Template
}

func NewHandler(resolver *docs.Resolver) *Handler {
	return &Handler{
		resolver: resolver,
		index:    template.Must(template.ParseFS(templatesFS, "templates/layout.html", "templates/index.html")),
		viewer:   template.Must(template.ParseFS(templatesFS, "templates/layout.html", "templates/viewer.html")),
	}
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	names := docs.ListPDFs(h.resolver.Dir())
	items := make([]indexItem, len(names))
	for i, n := range names {
		items[i] = indexItem{Name: n, Href: "/viewer/" + url.PathEscape(n)}
	}
	h.render(r.Context(), w, h.index, map[string]interface{}{
		"Title": siteTitle,
		"Items": items,
	})
}

// View renders the viewer for /viewer/{name}?page=N. Unknown and non-PDF
// names are 404.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := path.Base(strings.ReplaceAll(r.PathValue("name"), `\`, "/"))
	if actual, ok := h.resolver.Resolve(name); ok {
		name = actual
	}

	info, err := os.Stat(filepath.Join(h.resolver.Dir(), name))
	if err != nil || !info.Mode().IsRegular() || !strings.EqualFold(filepath.Ext(name), ".pdf") {
		h.writeError(ctx, w, "NOT_FOUND", "Документ не найден.", http.StatusNotFound)
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			page = n
		}
	}
	pdfURL := "/files/" + url.PathEscape(name)
	if page > 0 {
		pdfURL += "#page=" + strconv.Itoa(page)
	}

	h.render(ctx, w, h.viewer, map[string]interface{}{
		"Title":  name,
		"Name":   name,
		"PDFURL": pdfURL,
	})
}

// Files serves the document directory under /files/.
func (h *Handler) Files() http.Handler {
	return http.StripPrefix("/files/", http.FileServer(http.Dir(h.resolver.Dir())))
}

func (h *Handler) render(ctx context.Context, w http.ResponseWriter, t *template.Template, data interface{}) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.ErrorContext(ctx, "failed to render page", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
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
		slog.Error("failed to encode error response", "error", err)
	}
}
