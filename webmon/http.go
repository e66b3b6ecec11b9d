package webmon

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hazyhaar/changeview/audit"
	"github.com/hazyhaar/changeview/page"
	"github.com/hazyhaar/changeview/shield"
)

//go:embed static
var staticFS embed.FS

// Handler returns the HTTP surface: the change view, the JSON API under
// /api and the static assets.
func (s *Service) Handler() http.Handler {
	s.handlerOnce.Do(func() { s.handler = s.routes() })
	return s.handler
}

func (s *Service) routes() http.Handler {
	if len(s.cfg.Auth.Users) == 0 {
		s.logger.Warn("webmon: no auth.users configured, write endpoints are open")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.Stack(s.logger, s.cfg.HTTP.MaxBodyBytes) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Handle("/static/*", http.FileServerFS(staticFS))

	r.Get("/", s.handleIndex)
	r.Get("/page/{pageID}", s.handleView)
	r.Get("/page/{pageID}/", s.handleView)
	r.Get("/page/{pageID}/{changeToken}", s.handleView)

	r.Route("/api", func(r chi.Router) {
		if len(s.cfg.HTTP.AllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   s.cfg.HTTP.AllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
				ExposedHeaders:   []string{"X-Request-Id"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}

		r.Get("/pages", s.apiListPages)
		r.Get("/pages/{pageID}", s.apiGetPage)
		r.Get("/pages/{pageID}/changes/{changeToken}", s.apiResolve)
		r.Get("/pages/{pageID}/changes/{changeToken}/annotations", s.apiListAnnotations)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/pages", s.apiCreatePage)
			r.Post("/pages/{pageID}/versions", s.apiAddVersion)
			r.Post("/pages/{pageID}/capture", s.apiCapture)
			r.Post("/pages/{pageID}/changes/{changeToken}/annotations", s.apiAnnotate)
			r.Get("/audit", s.apiAudit)
			r.Get("/debug/sql", s.apiSQLStats)
		})
	})
	return r
}

func (s *Service) apiListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.ListPages(r.Context())
	if err != nil {
		writeError(w, statusOf(err, 500), err)
		return
	}
	writeJSON(w, 200, pages)
}

func (s *Service) apiGetPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.GetPage(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		writeError(w, statusOf(err, 500), err)
		return
	}
	writeJSON(w, 200, p)
}

func (s *Service) apiCreatePage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	start := time.Now()
	p, err := s.CreatePage(r.Context(), req.Title, req.URL)
	s.auditWrite(r, "create_page", req, start, err)
	if err != nil {
		writeError(w, statusOf(err, 500), err)
		return
	}
	writeJSON(w, 201, p)
}

func (s *Service) apiAddVersion(w http.ResponseWriter, r *http.Request) {
	var req ManualVersion
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	start := time.Now()
	pageID := chi.URLParam(r, "pageID")
	res, err := s.AddVersion(r.Context(), pageID, req)
	s.auditWrite(r, "add_version", map[string]any{"page_id": pageID, "html_bytes": len(req.HTML)}, start, err)
	if err != nil {
		writeError(w, statusOf(err, 500), err)
		return
	}
	writeJSON(w, captureStatus(res), res)
}

func (s *Service) apiCapture(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	pageID := chi.URLParam(r, "pageID")
	res, err := s.Capture(r.Context(), pageID)
	s.auditWrite(r, "capture", map[string]string{"page_id": pageID}, start, err)
	if err != nil {
		shield.Logger(r.Context()).Warn("webmon: capture failed", "error", err)
		writeError(w, statusOf(err, 502), err)
		return
	}
	writeJSON(w, captureStatus(res), res)
}

func captureStatus(res *CaptureResult) int {
	if res.Changed {
		return 201
	}
	return 200
}

func (s *Service) apiResolve(w http.ResponseWriter, r *http.Request) {
	res, err := s.ResolveChange(r.Context(), chi.URLParam(r, "pageID"), chi.URLParam(r, "changeToken"))
	if err != nil {
		writeError(w, statusOf(err, 500), err)
		return
	}
	writeJSON(w, 200, res)
}

func (s *Service) apiListAnnotations(w http.ResponseWriter, r *http.Request) {
	list, err := s.ListAnnotations(r.Context(), chi.URLParam(r, "pageID"), chi.URLParam(r, "changeToken"))
	if err != nil {
		writeError(w, statusOf(err, 500), err)
		return
	}
	writeJSON(w, 200, list)
}

func (s *Service) apiAnnotate(w http.ResponseWriter, r *http.Request) {
	var a page.Annotation
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, 400, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	from, to, err := tokenPair(chi.URLParam(r, "changeToken"))
	if err != nil {
		writeError(w, 400, err)
		return
	}
	start := time.Now()
	pageID := chi.URLParam(r, "pageID")
	res, err := s.AnnotateChange(r.Context(), pageID, from, to, a)
	s.auditWrite(r, "annotate_change", map[string]string{"page_id": pageID, "from": from, "to": to}, start, err)
	if err != nil {
		writeError(w, statusOf(err, 500), err)
		return
	}
	writeJSON(w, 201, res)
}

func (s *Service) apiAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.AuditLog(r.Context(), r.URL.Query().Get("action"), limit)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, entries)
}

func (s *Service) auditWrite(r *http.Request, action string, params any, start time.Time, err error) {
	s.audit.LogAsync(audit.FromContext(r.Context(), action, params, start, err))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Service) apiSQLStats(w http.ResponseWriter, _ *http.Request) {
	if s.sqlStats == nil {
		writeError(w, 404, ErrTraceDisabled)
		return
	}
	writeJSON(w, 200, s.sqlStats.Stats())
}
