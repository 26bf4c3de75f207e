// internal/infra/httpapi/server.go
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"payment_reminder/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Invoker runs one reconciliation, reporting false if one is already running.
type Invoker interface {
	TryInvoke(ctx context.Context) (app.Response, bool)
}

// Handler serves the manual trigger and health endpoints.
type Handler struct {
	invoker Invoker
	timeout time.Duration
	nextRun func() time.Time // optional
	logger  *logrus.Entry
}

func NewHandler(invoker Invoker, timeout time.Duration, nextRun func() time.Time, logger *logrus.Entry) *Handler {
	return &Handler{invoker: invoker, timeout: timeout, nextRun: nextRun, logger: logger.WithField("component", "http")}
}

// NewRouter wires the routes.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Post("/run", h.Run)
	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	NextRun string `json:"next_run,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.nextRun != nil {
		if next := h.nextRun(); !next.IsZero() {
			resp.NextRun = next.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Run triggers a reconciliation and answers with the same status and body the
// serverless entry point would return.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	resp, ok := h.invoker.TryInvoke(ctx)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a run is already in progress"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write([]byte(resp.Body))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("HTTP request")
		})
	}
}
