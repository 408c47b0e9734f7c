package httpapi

import (
	"bytes"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"pocketd/internal/reqctx"
)

// loggingLineWriter logs complete event-stream lines at debug level.
type loggingLineWriter struct {
	log *zerolog.Logger
	buf []byte
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if line := lw.buf[:idx]; len(line) > 0 {
			lw.log.Debug().Bytes("line", line).Msg("sse>")
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

// requestLogLevel returns a per-request verbosity override from ?log= or
// X-Log-Level. "1" is accepted as debug, "off" disables logging.
func requestLogLevel(r *http.Request) (zerolog.Level, bool) {
	v := r.URL.Query().Get("log")
	if v == "" {
		v = r.Header.Get("X-Log-Level")
	}
	switch v {
	case "":
		return zerolog.NoLevel, false
	case "1":
		return zerolog.DebugLevel, true
	case "off":
		return zerolog.Disabled, true
	}
	lvl, err := zerolog.ParseLevel(v)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, false
	}
	return lvl, true
}

// requestContext allocates the request ID and installs a logger tagged with
// it, so every line logged while serving the request carries req=<id>.
func (s *server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := s.coord.Begin()
		l := s.log.With().Uint64("req", rc.ID).Logger()
		if lvl, ok := requestLogLevel(r); ok {
			l = l.Level(lvl)
		}
		ctx := l.WithContext(reqctx.WithRequest(r.Context(), rc))
		w.Header().Set("X-Request-ID", strconv.FormatUint(rc.ID, 10))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := l.Info()
		if status >= http.StatusInternalServerError {
			ev = l.Error()
		}
		ev.Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).
			Int("bytes", ww.BytesWritten()).Dur("dur", time.Since(rc.Start)).Msg("request")
	})
}

// recoverJSON turns a handler panic into a logged 500 envelope.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rv := recover()
			if rv == nil {
				return
			}
			if rv == http.ErrAbortHandler {
				panic(rv)
			}
			zerolog.Ctx(r.Context()).Error().Interface("panic", rv).Bytes("stack", debug.Stack()).
				Str("method", r.Method).Str("path", r.URL.Path).Msg("handler panic")
			writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}
