package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/ttsproxy/internal/auth"
	"github.com/nikhilbhutani/ttsproxy/internal/multimodal/tts"
)

type Config struct {
	Server    ServerConfig
	Aliyun    AliyunConfig
	TTS       TTSConfig
	RateLimit RateLimitConfig
	LogLevel  slog.Level
}

// ServerConfig.TrustProxyHeaders makes X-Forwarded-For / X-Real-IP the client
// address. Only enable it behind a load balancer that overwrites those headers.
type ServerConfig struct {
	Host              string
	Port              int
	AllowedOrigins    []string
	TrustProxyHeaders bool
}

type AliyunConfig struct {
	Credentials      auth.Credentials
	Region           string
	TokenURL         string
	TTSURL           string
	TTSMethod        string
	TokenTimeout     time.Duration
	SynthesisTimeout time.Duration
}

type TTSConfig struct {
	MaxTextLength     int
	DefaultVoice      string
	DefaultSampleRate int
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// LoadDotEnv reads a .env file into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() (*Config, error) {
	port, err := getEnvInt("PORT", 10000)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	maxText, err := getEnvInt("TTS_MAX_TEXT_LENGTH", tts.DefaultMaxTextLength)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_MAX_TEXT_LENGTH: %w", err)
	}

	sampleRate, err := getEnvInt("TTS_DEFAULT_SAMPLE_RATE", tts.DefaultSampleRate)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_DEFAULT_SAMPLE_RATE: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	tokenTimeout, err := getEnvDuration("TOKEN_TIMEOUT", auth.DefaultTokenTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TIMEOUT: %w", err)
	}

	synthTimeout, err := getEnvDuration("SYNTHESIS_TIMEOUT", tts.DefaultSynthesisTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNTHESIS_TIMEOUT: %w", err)
	}

	trustProxy, err := getEnvBool("TRUST_PROXY_HEADERS", false)
	if err != nil {
		return nil, fmt.Errorf("invalid TRUST_PROXY_HEADERS: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:              getEnv("SERVER_HOST", "0.0.0.0"),
			Port:              port,
			AllowedOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
			TrustProxyHeaders: trustProxy,
		},
		Aliyun: AliyunConfig{
			Credentials: auth.Credentials{
				AccessKeyID:     strings.TrimSpace(os.Getenv("ALIYUN_ACCESS_KEY_ID")),
				AccessKeySecret: strings.TrimSpace(os.Getenv("ALIYUN_ACCESS_KEY_SECRET")),
				AppKey:          strings.TrimSpace(os.Getenv("ALIYUN_APP_KEY")),
			},
			Region:           getEnv("ALIYUN_REGION", auth.DefaultRegion),
			TokenURL:         getEnv("ALIYUN_TOKEN_URL", auth.DefaultTokenEndpoint),
			TTSURL:           getEnv("ALIYUN_TTS_URL", tts.DefaultAliyunEndpoint),
			TTSMethod:        strings.ToUpper(getEnv("ALIYUN_TTS_METHOD", http.MethodPost)),
			TokenTimeout:     tokenTimeout,
			SynthesisTimeout: synthTimeout,
		},
		TTS: TTSConfig{
			MaxTextLength:     maxText,
			DefaultVoice:      getEnv("TTS_DEFAULT_VOICE", tts.DefaultVoice),
			DefaultSampleRate: sampleRate,
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: burst,
		},
		LogLevel: level,
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports every missing or unusable setting at once. The process must
// not start serving when it fails.
func (c *Config) Validate() error {
	var missing []string
	if c.Aliyun.Credentials.AccessKeyID == "" {
		missing = append(missing, "ALIYUN_ACCESS_KEY_ID")
	}
	if c.Aliyun.Credentials.AccessKeySecret == "" {
		missing = append(missing, "ALIYUN_ACCESS_KEY_SECRET")
	}
	if c.Aliyun.Credentials.AppKey == "" {
		missing = append(missing, "ALIYUN_APP_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	if c.Aliyun.TTSMethod != http.MethodPost && c.Aliyun.TTSMethod != http.MethodGet {
		return fmt.Errorf("ALIYUN_TTS_METHOD must be GET or POST, got %q", c.Aliyun.TTSMethod)
	}
	if !tts.IsAcceptedSampleRate(c.TTS.DefaultSampleRate) {
		return fmt.Errorf("TTS_DEFAULT_SAMPLE_RATE %d is not supported by the provider", c.TTS.DefaultSampleRate)
	}
	if c.TTS.MaxTextLength <= 0 {
		return fmt.Errorf("TTS_MAX_TEXT_LENGTH must be positive")
	}
	if c.RateLimit.RPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Server.Port)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
