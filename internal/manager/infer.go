package manager

import (
	"context"

	"github.com/rs/zerolog"

	"pocketd/internal/executil"
	"pocketd/internal/stream"
	"pocketd/pkg/types"
)

// Chat runs one bounded inference and returns whatever the engine printed.
// A failed or timed out run still returns its output; the timeout note is
// part of it.
func (m *Manager) Chat(ctx context.Context, req types.ChatRequest) types.ChatResponse {
	res := executil.Run(ctx, withMaxTokens(m.engineRequest(callInfer, m.cfg.ChatTimeout, req.Message), req.MaxTokens))
	if !res.Succeeded {
		zerolog.Ctx(ctx).Warn().Bool("timed_out", res.TimedOut).Int("exit", res.ExitCode).Msg("chat inference failed")
	}
	return types.ChatResponse{Response: res.Output}
}

// ChatStream starts inference on a pseudo-terminal. The caller owns the
// returned stream and must Close it.
func (m *Manager) ChatStream(ctx context.Context, req types.ChatRequest) (*stream.Stream, error) {
	return m.streams.Start(ctx, withMaxTokens(m.engineRequest(callInfer, 0, req.Message), req.MaxTokens))
}
