package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/ttsproxy/internal/api/handlers"
	"github.com/nikhilbhutani/ttsproxy/internal/api/middleware"
	"github.com/nikhilbhutani/ttsproxy/internal/auth"
	"github.com/nikhilbhutani/ttsproxy/internal/config"
	"github.com/nikhilbhutani/ttsproxy/internal/metrics"
	"github.com/nikhilbhutani/ttsproxy/internal/multimodal/tts"
)

type Router struct {
	mux       *chi.Mux
	cfg       *config.Config
	metrics   *metrics.Metrics
	limiter   *middleware.RateLimiter
	validator *tts.Validator
	provider  tts.TTSProvider
}

// NewRouter wires the NLS token client and synthesis forwarder from cfg.
func NewRouter(cfg *config.Config, m *metrics.Metrics) *Router {
	tokens := auth.NewTokenClient(cfg.Aliyun.Credentials, auth.TokenClientConfig{
		Endpoint: cfg.Aliyun.TokenURL,
		Region:   cfg.Aliyun.Region,
		Timeout:  cfg.Aliyun.TokenTimeout,
	})

	provider := tts.NewAliyunTTS(tts.AliyunTTSConfig{
		Endpoint: cfg.Aliyun.TTSURL,
		AppKey:   cfg.Aliyun.Credentials.AppKey,
		Method:   cfg.Aliyun.TTSMethod,
		Timeout:  cfg.Aliyun.SynthesisTimeout,
	}, tokens)

	return NewRouterWithProvider(cfg, m, provider)
}

// NewRouterWithProvider allows a different synthesis backend to be injected.
func NewRouterWithProvider(cfg *config.Config, m *metrics.Metrics, provider tts.TTSProvider) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		cfg:     cfg,
		metrics: m,
		limiter: middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		validator: tts.NewValidator(tts.ValidatorConfig{
			MaxTextLength:     cfg.TTS.MaxTextLength,
			DefaultVoice:      cfg.TTS.DefaultVoice,
			DefaultSampleRate: cfg.TTS.DefaultSampleRate,
		}),
		provider: provider,
	}
}

// RateLimiter exposes the limiter so the caller can run its eviction loop.
func (rt *Router) RateLimiter() *middleware.RateLimiter {
	return rt.limiter
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	if rt.cfg.Server.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.Logging(rt.metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))

	// Operational endpoints (no rate limit)
	health := handlers.NewHealthHandler()
	r.Get("/health", health.Health)
	r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())

	synth := handlers.NewSynthesisHandler(rt.validator, rt.provider, rt.metrics)
	r.With(rt.limiter.Limit).Get("/", synth.Speak)

	return r
}
