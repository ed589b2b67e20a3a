package tts

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nikhilbhutani/ttsproxy/internal/apperrors"
)

const (
	DefaultMaxTextLength = 300
	DefaultVoice         = "zhixiaoxia"
	DefaultSampleRate    = 16000

	opValidate = "validate"
)

// Sample rates the NLS gateway accepts.
var acceptedSampleRates = map[int]bool{
	8000:  true,
	16000: true,
	24000: true,
	48000: true,
}

type ValidatorConfig struct {
	MaxTextLength     int
	DefaultVoice      string
	DefaultSampleRate int
}

// Validator turns raw caller query parameters into a SynthesisRequest.
type Validator struct {
	cfg ValidatorConfig
}

func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = DefaultMaxTextLength
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = DefaultVoice
	}
	if !IsAcceptedSampleRate(cfg.DefaultSampleRate) {
		cfg.DefaultSampleRate = DefaultSampleRate
	}
	return &Validator{cfg: cfg}
}

// Validate checks q before any network call is made. Text is taken exactly as
// the transport decoded it; no further unescaping happens here.
func (v *Validator) Validate(q url.Values) (*SynthesisRequest, error) {
	text := q.Get("text")
	if text == "" {
		return nil, apperrors.Validation(opValidate, "missing text")
	}
	if utf8.RuneCountInString(text) > v.cfg.MaxTextLength {
		return nil, apperrors.Validation(opValidate, "text too long")
	}

	voice := strings.TrimSpace(q.Get("voice"))
	if voice == "" {
		voice = v.cfg.DefaultVoice
	}

	sampleRate := v.cfg.DefaultSampleRate
	if raw := strings.TrimSpace(q.Get("sample_rate")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !IsAcceptedSampleRate(n) {
			return nil, apperrors.Validation(opValidate, "invalid sample_rate")
		}
		sampleRate = n
	}

	return &SynthesisRequest{
		Text:       text,
		Voice:      voice,
		SampleRate: sampleRate,
		Format:     FormatWAV,
		Volume:     DefaultVolume,
		SpeechRate: DefaultSpeechRate,
	}, nil
}

func IsAcceptedSampleRate(n int) bool {
	return acceptedSampleRates[n]
}
