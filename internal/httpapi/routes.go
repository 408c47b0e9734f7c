package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"pocketd/internal/manager"
	"pocketd/internal/sse"
	"pocketd/pkg/types"
)

// route is one entry of the API table. body and resp are example payloads
// used only for the generated API document.
type route struct {
	method  string
	pattern string
	summary string
	tag     string
	body    any
	resp    any
	limited bool
	handler func(s *server) http.HandlerFunc
}

var routes = []route{
	{method: http.MethodGet, pattern: "/api/health", summary: "Liveness and active stream count", tag: "system",
		resp: types.HealthResponse{}, handler: (*server).health},
	{method: http.MethodGet, pattern: "/api/reset", summary: "Kill all inference processes and reset stream tracking", tag: "system",
		resp: types.ResetResponse{}, handler: (*server).reset},
	{method: http.MethodGet, pattern: "/api/status", summary: "Engine version and active model", tag: "system",
		resp: types.StatusResponse{}, handler: (*server).status},
	{method: http.MethodGet, pattern: "/api/models", summary: "Model catalog", tag: "models",
		resp: types.CatalogResponse{}, handler: (*server).catalog},
	{method: http.MethodGet, pattern: "/api/models/installed", summary: "Installed model files", tag: "models",
		resp: types.InstalledResponse{}, handler: (*server).installed},
	{method: http.MethodPost, pattern: "/api/models/install", summary: "Download and install a model", tag: "models",
		body: types.ModelRequest{}, resp: types.OperationResponse{}, handler: (*server).install},
	{method: http.MethodPost, pattern: "/api/models/remove", summary: "Remove an installed model", tag: "models",
		body: types.ModelRequest{}, resp: types.OperationResponse{}, handler: (*server).remove},
	{method: http.MethodPost, pattern: "/api/models/use", summary: "Activate an installed model", tag: "models",
		body: types.ModelRequest{}, resp: types.OperationResponse{}, handler: (*server).use},
	{method: http.MethodPost, pattern: "/api/chat", summary: "Single-shot chat completion", tag: "chat",
		body: types.ChatRequest{}, resp: types.ChatResponse{}, limited: true, handler: (*server).chat},
	{method: http.MethodPost, pattern: "/api/chat/stream", summary: "Streaming chat completion (text/event-stream)", tag: "chat",
		body: types.ChatRequest{}, limited: true, handler: (*server).chatStream},
	{method: http.MethodGet, pattern: "/api/config", summary: "Persisted key/value configuration", tag: "config",
		resp: map[string]string{}, handler: (*server).getConfig},
	{method: http.MethodPost, pattern: "/api/config", summary: "Set one configuration key", tag: "config",
		body: types.ConfigSetRequest{}, resp: types.SuccessResponse{}, handler: (*server).setConfig},
}

func (s *server) health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.svc.Health())
	}
}

func (s *server) reset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.svc.Reset(r.Context()))
	}
}

func (s *server) status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.svc.Status(r.Context())
		// a stale status is still worth returning
		if err != nil && st.Status == "" {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("status")
			writeJSONError(w, errorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func (s *server) catalog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := s.svc.Catalog()
		if err != nil {
			writeJSONError(w, errorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, types.CatalogResponse{Models: models})
	}
}

func (s *server) installed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := s.svc.Installed(r.Context())
		if err != nil && models == nil {
			writeJSONError(w, errorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, types.InstalledResponse{Models: models})
	}
}

func (s *server) install() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeBody[types.ModelRequest](s, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.svc.Install(r.Context(), req.Model))
	}
}

func (s *server) remove() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeBody[types.ModelRequest](s, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.svc.Remove(r.Context(), req.Model))
	}
}

func (s *server) use() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeBody[types.ModelRequest](s, w, r)
		if !ok {
			return
		}
		resp, err := s.svc.Use(r.Context(), req.Model)
		switch {
		case err == nil, manager.IsModelNotInstalled(err), errors.Is(err, manager.ErrEmptyModel):
			writeJSON(w, http.StatusOK, resp)
		default:
			zerolog.Ctx(r.Context()).Error().Err(err).Str("model", req.Model).Msg("use model")
			writeJSONError(w, errorStatus(err), err.Error())
		}
	}
}

func (s *server) chat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeBody[types.ChatRequest](s, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.svc.Chat(r.Context(), req))
	}
}

// chatStream relays inference output as server-sent events. The stream is
// always closed by the deferred Close, whichever way the relay ends.
func (s *server) chatStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeBody[types.ChatRequest](s, w, r)
		if !ok {
			return
		}
		ctx, cancel := joinContexts(s.opts.BaseContext, r.Context())
		defer cancel()
		log := zerolog.Ctx(ctx)

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		rc := http.NewResponseController(w)
		flush := func() { _ = rc.Flush() }
		flush()

		st, err := s.svc.ChatStream(ctx, req)
		if err != nil {
			log.Error().Err(err).Msg("chat stream start")
			sse.WriteError(w, flush, err.Error())
			return
		}
		defer st.Close()

		out := io.Writer(w)
		if log.GetLevel() <= zerolog.DebugLevel {
			out = io.MultiWriter(w, &loggingLineWriter{log: log})
		}
		full, err := sse.Relay(out, flush, st)
		ev := log.Info()
		if reason := st.Reason(); reason == "idle_timeout" || reason == "overall_timeout" {
			ev = log.Warn()
		}
		ev.Str("reason", st.Reason()).Int("chars", len(full)).AnErr("end", err).Msg("chat stream end")
	}
}

func (s *server) getConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.svc.Config()
		if err != nil {
			writeJSONError(w, errorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

func (s *server) setConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeBody[types.ConfigSetRequest](s, w, r)
		if !ok {
			return
		}
		if err := s.svc.SetConfig(r.Context(), req.Key, req.Value); err != nil {
			writeJSONError(w, errorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true})
	}
}
