package tts

import (
	"context"
	"io"
)

const (
	FormatWAV         = "wav"
	ContentTypeWAV    = "audio/wav"
	DefaultVolume     = 50
	DefaultSpeechRate = 0
)

// SynthesisRequest holds the parameters for one text-to-speech call.
type SynthesisRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Format     string `json:"format"`
	Volume     int    `json:"volume"`
	SpeechRate int    `json:"speech_rate"`
}

// SynthesisStream is a provider audio response that has not been read yet.
// The caller owns Body and must close it.
type SynthesisStream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// TTSProvider is the interface for text-to-speech backends.
type TTSProvider interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisStream, error)
	Name() string
}

// TokenSource hands out a freshly acquired provider token per call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}
