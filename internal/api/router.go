package api

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"reelsmith/internal/app"
)

// UserHeader carries the caller's user id when the body does not.
const UserHeader = "X-User-ID"

type Handler struct {
	service  *app.Service
	pipeline *app.Pipeline
}

func NewHandler(service *app.Service, pipeline *app.Pipeline) *Handler {
	return &Handler{service: service, pipeline: pipeline}
}

// Routes wires the HTTP surface. Rendering requests run to completion
// within the request, so no per-route timeout is applied here.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/storyboards", h.GenerateStoryboard)
		r.Post("/segments/assets", h.PrepareAssets)
		r.Post("/segments/basic", h.RenderBasic)
		r.Post("/segments/vidu", h.RenderVidu)
		r.Post("/videos/concat", h.Concat)
		r.Post("/videos", h.Produce)
		r.Get("/music", h.ListMusic)
		r.Get("/secure-file", h.SecureFile)
	})

	if resolver := h.service.Resolver(); resolver != nil {
		generated := filepath.Join(resolver.Root(), "generated")
		r.Handle("/generated/*", http.StripPrefix("/generated/", http.FileServer(http.Dir(generated))))
	}

	return r
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
