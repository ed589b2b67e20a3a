package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/ttsproxy/internal/apperrors"
	"github.com/nikhilbhutani/ttsproxy/internal/metrics"
	"github.com/nikhilbhutani/ttsproxy/internal/multimodal/tts"
)

type stubProvider struct {
	stream *tts.SynthesisStream
	err    error
	got    tts.SynthesisRequest
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisStream, error) {
	s.got = req
	return s.stream, s.err
}

func newHandler(p tts.TTSProvider) *SynthesisHandler {
	return NewSynthesisHandler(tts.NewValidator(tts.ValidatorConfig{}), p, metrics.New())
}

func TestSpeak_RelaysAudio(t *testing.T) {
	p := &stubProvider{stream: &tts.SynthesisStream{
		Body:        io.NopCloser(strings.NewReader("RIFFdataWAVE")),
		ContentType: "audio/mpeg",
	}}

	rec := httptest.NewRecorder()
	newHandler(p).Speak(rec, httptest.NewRequest(http.MethodGet, "/?text=%E4%BD%A0%E5%A5%BD&sample_rate=24000", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "RIFFdataWAVE", rec.Body.String())
	assert.True(t, rec.Flushed)
	assert.Equal(t, "你好", p.got.Text)
	assert.Equal(t, 24000, p.got.SampleRate)
}

func TestSpeak_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		forbidden  string
	}{
		{
			name:       "auth error hides provider detail",
			err:        &apperrors.Error{Kind: apperrors.KindAuth, Op: "create_token", Message: "token endpoint returned 403", Detail: `{"Code":"Forbidden.AccessKeyDisabled"}`},
			wantStatus: http.StatusInternalServerError,
			wantError:  msgSynthesisFailed,
			forbidden:  "AccessKeyDisabled",
		},
		{
			name:       "provider error",
			err:        apperrors.Provider("synthesize", 400, "synthesis failed", "not json"),
			wantStatus: http.StatusInternalServerError,
			wantError:  msgSynthesisFailed,
		},
		{
			name:       "unexpected error",
			err:        errors.New("something broke"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal server error",
			forbidden:  "something broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newHandler(&stubProvider{err: tt.err}).Speak(rec, httptest.NewRequest(http.MethodGet, "/?text=hi", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body["error"])
			if tt.forbidden != "" {
				assert.NotContains(t, rec.Body.String(), tt.forbidden)
			}
		})
	}
}

func TestSpeak_ProviderNonJSONDetailIsQuoted(t *testing.T) {
	rec := httptest.NewRecorder()
	err := apperrors.Provider("synthesize", 502, "synthesis failed", "<html>bad gateway</html>")
	newHandler(&stubProvider{err: err}).Speak(rec, httptest.NewRequest(http.MethodGet, "/?text=hi", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "<html>bad gateway</html>", body["provider_response"])
}

type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "RIFF"), nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestSpeak_AbortsOnMidStreamFailure(t *testing.T) {
	p := &stubProvider{stream: &tts.SynthesisStream{Body: io.NopCloser(&failingReader{})}}

	rec := httptest.NewRecorder()
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		newHandler(p).Speak(rec, httptest.NewRequest(http.MethodGet, "/?text=hi", nil))
	})
	assert.Equal(t, "RIFF", rec.Body.String())
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler()
	h.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK","time":"2026-01-02T03:04:05Z"}`, rec.Body.String())
}
