package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chicogong/ytagents/pkg/logger"
)

// LoggingMiddleware logs every request with its status and latency
func LoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// RecoveryMiddleware turns panics into a 500 JSON response
func RecoveryMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.Error("handler panic", "error", err, "path", r.URL.Path)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"internal_server_error","message":"Internal server error","code":500}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware adds CORS headers for the dashboard
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		// Handle preflight request
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Router mounts every route. auth, when non-nil, guards /api.
func (s *Server) Router(auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RecoveryMiddleware(s.log), LoggingMiddleware(s.log), CORSMiddleware)

	r.Get("/health", s.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		if auth != nil {
			r.Use(auth)
		}

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", s.HandleListWorkflows)
			r.Post("/", s.HandleCreateWorkflow)
			r.Get("/{id}", s.HandleGetWorkflow)
			r.Post("/{id}/upload", s.HandleUpload)
			r.Get("/{id}/steps/{step}", s.HandleGetStep)
			r.Post("/{id}/steps/{step}", s.HandleGenerateStep)
			r.Post("/{id}/steps/{step}/approve", s.HandleApproveStep)
			r.Post("/{id}/steps/{step}/reject", s.HandleRejectStep)
		})

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", s.HandleListVideos)
			r.Get("/{id}", s.HandleGetVideo)
			r.Get("/{id}/info", s.HandleVideoInfo)
			r.Delete("/{id}", s.HandleDeleteVideo)
		})
	})
	return r
}
