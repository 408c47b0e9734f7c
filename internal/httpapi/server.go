package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"pocketd/internal/reqctx"
	"pocketd/internal/stream"
	"pocketd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// manager.Manager implements it.
type Service interface {
	Health() types.HealthResponse
	Reset(ctx context.Context) types.ResetResponse
	Status(ctx context.Context) (types.StatusResponse, error)
	Catalog() ([]types.CatalogModel, error)
	Installed(ctx context.Context) ([]types.InstalledModel, error)
	Config() (map[string]string, error)
	SetConfig(ctx context.Context, key, value string) error
	Install(ctx context.Context, model string) types.OperationResponse
	Remove(ctx context.Context, model string) types.OperationResponse
	Use(ctx context.Context, model string) (types.OperationResponse, error)
	Chat(ctx context.Context, req types.ChatRequest) types.ChatResponse
	ChatStream(ctx context.Context, req types.ChatRequest) (*stream.Stream, error)
}

type server struct {
	svc       Service
	opts      Options
	coord     *reqctx.Coordinator
	log       zerolog.Logger
	chatLimit *rate.Limiter
}

// NewMux builds the HTTP handler: middleware, the API route table, metrics,
// swagger and optional static files.
func NewMux(svc Service, opts Options) http.Handler {
	opts = opts.withDefaults()
	s := &server{svc: svc, opts: opts, coord: opts.Coordinator, log: opts.Logger}
	if opts.ChatRatePerMin > 0 {
		s.chatLimit = rate.NewLimiter(rate.Limit(float64(opts.ChatRatePerMin)/60), opts.ChatBurst)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestContext)
	r.Use(recoverJSON)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     opts.CORSOrigins,
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type", "X-Log-Level"},
		ExposedHeaders:     []string{"X-Request-ID"},
		OptionsPassthrough: true,
	}))
	r.Use(s.corsHeaders)
	r.Use(preflight)
	r.Use(MetricsMiddleware)

	for _, rt := range routes {
		h := rt.handler(s)
		if rt.limited {
			h = s.limitChat(h)
		}
		r.Method(rt.method, rt.pattern, h)
	}
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.notFound)
	return r
}

// corsHeaders puts the permissive headers on every response.
func (s *server) corsHeaders(next http.Handler) http.Handler {
	anyOrigin := s.opts.allowAnyOrigin()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if anyOrigin {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

// preflight answers OPTIONS on any API path before routing.
func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions && strings.HasPrefix(r.URL.Path, "/api/") {
			writeJSON(w, http.StatusOK, struct{}{})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) limitChat(next http.HandlerFunc) http.HandlerFunc {
	if s.chatLimit == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.chatLimit.Allow() {
			IncrementBackpressure("chat_rate")
			zerolog.Ctx(r.Context()).Warn().Str("path", r.URL.Path).Msg("chat rate limited")
			writeJSONError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next(w, r)
	}
}

// notFound serves static files for non-API GETs when a web directory is
// configured; everything else is a JSON 404.
func (s *server) notFound(w http.ResponseWriter, r *http.Request) {
	if s.opts.WebDir != "" && !strings.HasPrefix(r.URL.Path, "/api/") &&
		(r.Method == http.MethodGet || r.Method == http.MethodHead) {
		if serveStatic(w, r, s.opts.WebDir) {
			return
		}
	}
	writeJSONError(w, http.StatusNotFound, "Not found")
}

// decodeBody reads a JSON body into a T. Malformed or empty bodies yield the
// zero T; only an oversized body is rejected (413), in which case the
// response has been written and ok is false.
func decodeBody[T any](s *server, w http.ResponseWriter, r *http.Request) (v T, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(&v)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return v, false
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("ignoring malformed body")
		var zero T
		return zero, true
	}
	return v, true
}
