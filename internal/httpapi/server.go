package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/mlusby/temperature-monitor/internal/api"
	"github.com/mlusby/temperature-monitor/internal/observability"
	"github.com/mlusby/temperature-monitor/internal/store"
	apperrors "github.com/mlusby/temperature-monitor/pkg/errors"
)

const defaultMaxBodyBytes = 1 << 20

type Options struct {
	StoreReading api.Handler
	GetReadings  api.Handler
	ListSessions api.Handler

	// Optional.
	Pinger        store.Pinger
	Metrics       http.Handler
	Tracer        oteltrace.Tracer
	ServiceName   string
	IngestLimiter func(http.Handler) http.Handler
	MaxBodyBytes  int64
	ExposeDetails bool
}

type Server struct {
	opts Options
}

func New(opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "temperature-service"
	}
	return &Server{opts: opts}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	if s.opts.Tracer != nil {
		r.Use(observability.MetricsAndTracingMiddleware(s.opts.Tracer, s.opts.ServiceName))
	}

	write := s.adapt(s.opts.StoreReading)
	get := s.adapt(s.opts.GetReadings)

	r.Route("/readings", func(r chi.Router) {
		r.Get("/", get)
		r.Options("/", func(w http.ResponseWriter, req *http.Request) {
			// One path serves both families; answer preflight for the
			// method the browser is about to use.
			if req.Header.Get("Access-Control-Request-Method") == http.MethodPost {
				write(w, req)
				return
			}
			get(w, req)
		})
		r.Group(func(r chi.Router) {
			if s.opts.IngestLimiter != nil {
				r.Use(s.opts.IngestLimiter)
			}
			r.Post("/", write)
		})
	})
	r.Get("/health", write)

	list := s.adapt(s.opts.ListSessions)
	r.Get("/sessions", list)
	r.Options("/sessions", list)

	r.Get("/healthz", s.handleHealthz)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics)
	}
	return r
}

// adapt turns a transport-neutral handler into an http.HandlerFunc.
func (s *Server) adapt(h api.Handler) http.HandlerFunc {
	headers := map[string]string{"Content-Type": "application/json"}
	if hs, ok := h.(api.HeaderSource); ok {
		headers = hs.ResponseHeaders()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
		if err != nil {
			msg := "Could not read request body"
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				msg = "Request body too large"
			}
			writeResponse(w, api.ErrorResponse(apperrors.Validation(msg), headers, s.opts.ExposeDetails))
			return
		}

		query := make(map[string]string)
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				query[k] = v[0]
			}
		}

		writeResponse(w, h.Handle(r.Context(), api.Request{
			HTTPMethod:            r.Method,
			QueryStringParameters: query,
			Body:                  string(body),
		}))
	}
}

func writeResponse(w http.ResponseWriter, resp api.Response) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = io.WriteString(w, resp.Body)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Pinger.Ping(ctx); err != nil {
			slog.Warn("store ping failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
