package httpapi

import (
	"context"

	"github.com/rs/zerolog"

	"pocketd/internal/reqctx"
)

// defaultMaxBodyBytes bounds JSON request bodies when Options leaves it unset.
const defaultMaxBodyBytes int64 = 1 << 20

// Options configures the HTTP layer. The zero value is usable: a fresh
// coordinator, a disabled logger, a 1 MiB body limit, any origin, no rate
// limit and no static files.
type Options struct {
	// Coordinator allocates request IDs; share it with the manager so
	// /api/health sees the same active-stream count.
	Coordinator *reqctx.Coordinator
	Logger      zerolog.Logger
	// BaseContext is canceled on shutdown; streams end when it is.
	BaseContext  context.Context
	MaxBodyBytes int64
	// CORSOrigins lists allowed origins; empty or "*" allows any.
	CORSOrigins []string
	// ChatRatePerMin limits /api/chat and /api/chat/stream; 0 disables.
	ChatRatePerMin int
	ChatBurst      int
	// WebDir is served for non-API paths when set.
	WebDir string
}

func (o Options) withDefaults() Options {
	if o.Coordinator == nil {
		o.Coordinator = reqctx.New()
	}
	if o.BaseContext == nil {
		o.BaseContext = context.Background()
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(o.CORSOrigins) == 0 {
		o.CORSOrigins = []string{"*"}
	}
	if o.ChatBurst <= 0 {
		o.ChatBurst = 1
	}
	return o
}

func (o Options) allowAnyOrigin() bool {
	for _, v := range o.CORSOrigins {
		if v == "*" {
			return true
		}
	}
	return false
}
