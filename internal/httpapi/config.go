package httpapi

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// defaultMaxBodyBytes bounds JSON request bodies. Classify tensors are
// sent inline, so this is larger than a typical API limit.
const defaultMaxBodyBytes int64 = 64 << 20

// CORSOptions configures cross-origin access (opt-in). If disabled, no CORS
// middleware is added.
type CORSOptions struct {
	Enabled        bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Options tunes the HTTP surface.
type Options struct {
	// BaseContext is canceled on shutdown; handlers join it with the request
	// context. Nil means Background.
	BaseContext context.Context
	// Maximum request body size (0 = 64 MiB).
	MaxBodyBytes int64
	// Upper bound for one /generate call (0 disables).
	GenerateTimeout time.Duration
	// Relative model folders in /load are resolved against ModelsDir.
	ModelsDir string
	CORS      CORSOptions
	Logger    *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.BaseContext == nil {
		o.BaseContext = context.Background()
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	if o.GenerateTimeout < 0 {
		o.GenerateTimeout = 0
	}
	if len(o.CORS.AllowedMethods) == 0 {
		o.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(o.CORS.AllowedHeaders) == 0 {
		o.CORS.AllowedHeaders = []string{"Content-Type", "X-Log-Level"}
	}
	return o
}
