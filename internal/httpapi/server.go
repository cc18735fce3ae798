// Package httpapi exposes a manager over HTTP: device listing and
// selection, provider acquisition, loads, classification and streamed
// generation.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"epmgr/internal/classify"
	"epmgr/internal/generate"
	"epmgr/internal/manager"
	"epmgr/internal/policy"
	"epmgr/internal/registry"
	"epmgr/internal/runtime"
	"epmgr/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *manager.Manager implements it.
type Service interface {
	Devices(ctx context.Context) ([]registry.Device, error)
	Selected() (registry.Device, bool)
	EnsureProviders(ctx context.Context) error
	SelectDevice(ctx context.Context, name string) (registry.Device, error)
	Load(ctx context.Context, kind manager.Kind, modelFolder string) (manager.LoadInfo, error)
	Classify(ctx context.Context, input runtime.Tensor) (classify.Result, error)
	Generate(ctx context.Context, prompt string, onProgress generate.ProgressFunc) (manager.GenerateResult, error)
	Status() types.StatusResponse
	Ready() bool
}

var _ Service = (*manager.Manager)(nil)

type server struct {
	svc  Service
	opts Options
	log  zerolog.Logger
}

// NewMux returns the router for svc.
func NewMux(svc Service, opts Options) http.Handler {
	s := &server{svc: svc, opts: opts.withDefaults(), log: zerolog.Nop()}
	if opts.Logger != nil {
		s.log = *opts.Logger
	}

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if s.opts.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORS.AllowedOrigins,
			AllowedMethods: s.opts.CORS.AllowedMethods,
			AllowedHeaders: s.opts.CORS.AllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/devices", s.devices)
	r.Post("/providers/ensure", s.ensureProviders)
	r.Post("/select", s.selectDevice)
	r.Post("/load", s.load)
	r.Post("/classify", s.classify)
	r.Post("/generate", s.generate)

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// DeviceDTO converts a registry device for the wire.
func DeviceDTO(d registry.Device) types.Device {
	return types.Device{
		Name:            d.Name,
		Vendor:          d.Vendor,
		Library:         d.Library,
		Kind:            policy.Classify(d.Name).String(),
		RequiresCompile: policy.RequiresCompilation(d),
		Metadata:        d.Metadata,
	}
}

func (s *server) devices(w http.ResponseWriter, r *http.Request) {
	devs, err := s.svc.Devices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := types.DevicesResponse{Devices: make([]types.Device, 0, len(devs))}
	for _, d := range devs {
		resp.Devices = append(resp.Devices, DeviceDTO(d))
	}
	if sel, ok := s.svc.Selected(); ok {
		resp.Selected = sel.Name
	}
	writeJSON(w, resp)
}

func (s *server) ensureProviders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := joinContexts(s.opts.BaseContext, r.Context())
	defer cancel()
	start := time.Now()
	if err := s.svc.EnsureProviders(ctx); err != nil {
		s.log.Error().Err(err).Dur("dur", time.Since(start)).Msg("http event=providers_ensure_failed")
		writeError(w, err)
		return
	}
	s.devices(w, r)
}

func (s *server) selectDevice(w http.ResponseWriter, r *http.Request) {
	var req types.SelectRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Device) == "" {
		writeJSONError(w, http.StatusBadRequest, "device is required")
		return
	}
	dev, err := s.svc.SelectDevice(r.Context(), req.Device)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, DeviceDTO(dev))
}

func (s *server) load(w http.ResponseWriter, r *http.Request) {
	var req types.LoadRequest
	if !s.decode(w, r, &req) {
		return
	}
	kind, err := manager.ParseKind(req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.ModelFolder) == "" {
		writeJSONError(w, http.StatusBadRequest, "model_folder is required")
		return
	}
	folder := req.ModelFolder
	if s.opts.ModelsDir != "" && !filepath.IsAbs(folder) {
		folder = filepath.Join(s.opts.ModelsDir, folder)
	}
	ctx, cancel := joinContexts(s.opts.BaseContext, r.Context())
	defer cancel()
	info, err := s.svc.Load(ctx, kind, folder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, types.LoadResponse{
		Kind:       string(info.Kind),
		Device:     info.Device,
		Path:       info.Path,
		Compiled:   info.Compiled,
		LoadMillis: info.Duration.Milliseconds(),
	})
}

func (s *server) classify(w http.ResponseWriter, r *http.Request) {
	var req types.ClassifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Classify(r.Context(), runtime.Tensor{Shape: req.Shape, ElementType: runtime.Float32, Data: req.Data})
	if err != nil {
		writeError(w, err)
		return
	}
	resp := types.ClassifyResponse{Predictions: make([]types.Prediction, 0, len(res.Predictions)), Text: res.Format()}
	for _, p := range res.Predictions {
		resp.Predictions = append(resp.Predictions, types.Prediction{Rank: p.Rank, Index: p.Index, Label: p.Label, Score: p.Score})
	}
	writeJSON(w, resp)
}

func (s *server) generate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	runID := uuid.NewString()
	ctx, cancel := joinContexts(s.opts.BaseContext, r.Context())
	defer cancel()
	if s.opts.GenerateTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, s.opts.GenerateTimeout)
		defer tcancel()
	}
	ctx = manager.WithRunID(ctx, runID)

	// Optional logging of NDJSON chunks
	lvl := requestLogLevel(r)
	var out io.Writer = w
	if lvl >= LevelDebug {
		out = io.MultiWriter(w, &lineLogger{log: &s.log})
	}
	enc := json.NewEncoder(out)
	flusher, _ := w.(http.Flusher)
	started := false
	tokens := 0
	emit := func(c types.GenerateChunk) {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Header().Set("X-Run-ID", runID)
			w.WriteHeader(http.StatusOK)
			started = true
		}
		_ = enc.Encode(c)
		if flusher != nil {
			flusher.Flush()
		}
	}

	start := time.Now()
	if lvl >= LevelInfo {
		s.log.Info().Str("run_id", runID).Str("request_id", middleware.GetReqID(r.Context())).Msg("generate start")
	}
	res, err := s.svc.Generate(ctx, req.Prompt, func(text string) {
		tokens++
		emit(types.GenerateChunk{RunID: runID, Text: text, Tokens: tokens})
	})
	if err != nil && !started {
		status := writeError(w, err)
		if lvl >= LevelInfo {
			s.log.Info().Str("run_id", runID).Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("generate end")
		}
		return
	}
	final := types.GenerateChunk{RunID: runID, Text: res.Content, Tokens: res.Tokens, Done: true, FinishReason: res.FinishReason}
	if err != nil {
		final.Error = err.Error()
	}
	// A client that went away gets nothing more.
	if r.Context().Err() == nil {
		emit(final)
	}
	if lvl >= LevelInfo {
		e := s.log.Info().Str("run_id", runID).Int("tokens", res.Tokens).Str("finish_reason", res.FinishReason).Dur("dur", time.Since(start))
		if err != nil {
			e = e.Err(err)
		}
		e.Msg("generate end")
	}
}

// decode enforces a JSON content type and the body limit, then decodes into v.
func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// If exceeded size, MaxBytesReader may cause an error; still return 400 to avoid size leak details
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
