package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"pocketd/internal/config"
	"pocketd/internal/httpapi"
	"pocketd/internal/kvstore"
	"pocketd/internal/manager"
	"pocketd/internal/reqctx"
)

const shutdownTimeout = 2 * time.Second

// newManager wires the manager to the resolved config. Lifecycle events go
// to the process log.
func newManager(cfg config.Config, coord *reqctx.Coordinator, log zerolog.Logger) *manager.Manager {
	return manager.New(manager.Config{
		Shell:           cfg.Shell,
		Root:            cfg.Root,
		EngineScript:    cfg.EngineScript,
		ModelsDir:       cfg.ModelsDir,
		Store:           kvstore.New(cfg.ConfigFile),
		ChatTimeout:     cfg.ChatTimeout(),
		StatusTTL:       cfg.StatusTTL(),
		InstalledTTL:    cfg.InstalledTTL(),
		StreamTimeout:   cfg.StreamTimeout(),
		IdleTimeout:     cfg.IdleTimeout(),
		PollInterval:    cfg.PollInterval(),
		KillGrace:       cfg.KillGrace(),
		InferenceBinary: cfg.InferenceBinary,
		Coordinator:     coord,
		Publisher:       manager.NewLogPublisher(log),
	})
}

// serve runs the HTTP server until ctx is canceled or the listener fails.
// On the way out in-flight streams are canceled, the listener is closed and
// every inference process is reaped.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	ctx = log.WithContext(ctx)
	coord := reqctx.New()
	mgr := newManager(cfg, coord, log)
	if rep := mgr.SanityCheck(); !rep.ShellFound || !rep.EngineFound {
		log.Warn().Interface("sanity", rep).Msg("engine not usable; model and chat operations will fail")
	}

	webDir := ""
	if cfg.ServeWeb {
		webDir = cfg.WebDir
	}
	base, cancelBase := context.WithCancel(ctx)
	defer cancelBase()
	srv := &http.Server{
		Handler: httpapi.NewMux(mgr, httpapi.Options{
			Coordinator:    coord,
			Logger:         log,
			BaseContext:    base,
			MaxBodyBytes:   cfg.MaxBodyBytes,
			CORSOrigins:    cfg.CORSOrigins,
			ChatRatePerMin: cfg.ChatRatePerMin,
			ChatBurst:      cfg.ChatBurst,
			WebDir:         webDir,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr(), err)
	}
	mode := "API only"
	if webDir != "" {
		mode = "API + Web"
	}
	log.Info().Str("addr", ln.Addr().String()).Str("root", cfg.Root).Str("mode", mode).Msg("pocketd listening")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			mgr.Shutdown(ctx)
			return fmt.Errorf("serve: %w", err)
		}
	}
	cancelBase()
	shCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown")
	}
	mgr.Shutdown(shCtx)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
