// Package server implements the Folio HTTP server and content API router.
package server

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/foliocms/folio/internal/config"
	"github.com/foliocms/folio/internal/handlers"
	"github.com/foliocms/folio/internal/media"
	"github.com/foliocms/folio/internal/metrics"
	"github.com/foliocms/folio/internal/repository"
	"github.com/foliocms/folio/internal/resource"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the Folio HTTP server. It routes collection CRUD requests to the
// per-resource handlers and serves uploaded media files.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	repo       repository.Store
	media      media.Store
	resources  []*handlers.ResourceHandler
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// New creates a new Server with the given configuration and wires up all
// content routes on the Chi router with Huma API.
func New(cfg *config.Config, repo repository.Store, mediaStore media.Store) (*Server, error) {
	if repo == nil {
		return nil, errors.New("server: repository is required")
	}
	if mediaStore == nil {
		return nil, errors.New("server: media store is required")
	}

	metrics.Register()

	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("Folio Content API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:    cfg,
		router: router,
		api:    api,
		repo:   repo,
		media:  mediaStore,
	}

	for _, def := range resource.Definitions() {
		s.resources = append(s.resources, handlers.NewResourceHandler(def, repo, mediaStore, cfg.Server.MaxUploadSize))
	}

	s.registerRoutes()
	return s, nil
}

// ListenAndServe starts the HTTP server on the given address.
// The returned http.Server is stored so it can be shut down gracefully.
// Middleware chain: metricsMiddleware -> commonHeaders -> recoverPanics -> router.
func (s *Server) ListenAndServe(addr string) error {
	var handler http.Handler = recoverPanics(s.router)
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's routing handler. Primarily useful in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// registerRoutes configures all routes on the Chi router.
// Huma routes (/health, /docs, /openapi.json) and /metrics are registered
// first, then one route group per collection, then the media file route.
func (s *Server) registerRoutes() {
	// Register /health via Huma for auto-OpenAPI documentation.
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the Folio server.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		if err := s.repo.Ping(ctx); err != nil {
			return nil, huma.Error503ServiceUnavailable("repository unavailable")
		}
		if err := s.media.HealthCheck(ctx); err != nil {
			return nil, huma.Error503ServiceUnavailable("media store unavailable")
		}
		return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	// Register HEAD /health separately (Huma only does one method per registration).
	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	// Register /metrics via promhttp.Handler().
	s.router.Handle("/metrics", promhttp.Handler())

	for _, h := range s.resources {
		h := h
		s.router.Route("/api/"+h.Definition().Path, func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			if h.Definition().HasMedia() {
				r.Post("/upload", h.Upload)
			}
			r.Get("/{id}", h.Get)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	}

	// Uploaded media files are served straight from the media store.
	s.router.Get("/uploads/*", s.serveMedia)
}

// serveMedia streams a stored media file back to the client. The ref is the
// path remainder after /uploads/, e.g. "photos/3f2a....jpg".
func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "*")
	clean, ok := media.CleanRef(ref)
	if !ok {
		http.NotFound(w, r)
		return
	}

	rc, size, err := s.media.Open(r.Context(), clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		slog.Error("media open failed", "ref", clean, "error", err)
		http.Error(w, "Server Error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(clean))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")

	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("media stream interrupted", "ref", clean, "error", err)
	}
}
