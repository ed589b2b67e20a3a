package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/ttsproxy/internal/apperrors"
)

type staticTokens struct {
	token string
	err   error
	calls int32
}

func (s *staticTokens) Token(ctx context.Context) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.token, s.err
}

var testRequest = SynthesisRequest{
	Text:       "你好世界",
	Voice:      "zhixiaoxia",
	SampleRate: 16000,
	Format:     FormatWAV,
	Volume:     DefaultVolume,
	SpeechRate: DefaultSpeechRate,
}

const testWAV = "RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00"

func TestAliyunTTS_PostSendsAllFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			return
		}
		assert.Equal(t, "app-key", body["appkey"])
		assert.Equal(t, "tok-1", body["token"])
		assert.Equal(t, "你好世界", body["text"])
		assert.Equal(t, "wav", body["format"])
		assert.EqualValues(t, 16000, body["sample_rate"])
		assert.Equal(t, "zhixiaoxia", body["voice"])
		assert.EqualValues(t, 50, body["volume"])
		assert.EqualValues(t, 0, body["speech_rate"])

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte(testWAV))
	}))
	defer server.Close()

	a := NewAliyunTTS(AliyunTTSConfig{Endpoint: server.URL, AppKey: "app-key"}, &staticTokens{token: "tok-1"})
	stream, err := a.Synthesize(context.Background(), testRequest)
	require.NoError(t, err)
	defer stream.Body.Close()

	data, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	assert.Equal(t, testWAV, string(data))
	assert.Equal(t, "audio/mpeg", stream.ContentType)
}

func TestAliyunTTS_GetSendsQueryWithSingleEncoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "你好 100%", q.Get("text"))
		assert.Equal(t, "tok-1", q.Get("token"))
		assert.Equal(t, "app-key", q.Get("appkey"))
		assert.Equal(t, "8000", q.Get("sample_rate"))
		assert.Equal(t, "wav", q.Get("format"))

		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte(testWAV))
	}))
	defer server.Close()

	req := testRequest
	req.Text = "你好 100%"
	req.SampleRate = 8000

	a := NewAliyunTTS(AliyunTTSConfig{Endpoint: server.URL, AppKey: "app-key", Method: "get"}, &staticTokens{token: "tok-1"})
	stream, err := a.Synthesize(context.Background(), req)
	require.NoError(t, err)
	stream.Body.Close()
}

func TestAliyunTTS_ProviderErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
	}{
		{"json error with 400", http.StatusBadRequest, "application/json", `{"task_id":"x","status":40000001,"message":"Gateway:ACCESS_DENIED"}`},
		{"server error", http.StatusInternalServerError, "application/json", `{"status":50000000,"message":"internal"}`},
		{"json error with 200", http.StatusOK, "application/json", `{"status":40000002,"message":"invalid voice"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			a := NewAliyunTTS(AliyunTTSConfig{Endpoint: server.URL}, &staticTokens{token: "tok"})
			stream, err := a.Synthesize(context.Background(), testRequest)
			require.Error(t, err)
			assert.Nil(t, stream)

			var appErr *apperrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.KindProvider, appErr.Kind)
			assert.Equal(t, tt.status, appErr.Status)
			assert.Equal(t, tt.body, appErr.Detail)
		})
	}
}

func TestAliyunTTS_TruncatedErrorBodyIsReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":40000001,"mess`))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer server.Close()

	a := NewAliyunTTS(AliyunTTSConfig{Endpoint: server.URL}, &staticTokens{token: "tok"})
	_, err := a.Synthesize(context.Background(), testRequest)
	require.Error(t, err)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.KindProvider, appErr.Kind)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Contains(t, appErr.Message, "error body incomplete")
	assert.Equal(t, `{"status":40000001,"mess`, appErr.Detail)
}

func TestAliyunTTS_TokenFailureStopsBeforeSynthesis(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	tokenErr := apperrors.Auth("create_token", apperrors.ReasonProtocol, "token missing from response", nil)
	a := NewAliyunTTS(AliyunTTSConfig{Endpoint: server.URL}, &staticTokens{err: tokenErr})

	_, err := a.Synthesize(context.Background(), testRequest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tokenErr))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestAliyunTTS_AcquiresTokenPerCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte(testWAV))
	}))
	defer server.Close()

	tokens := &staticTokens{token: "tok"}
	a := NewAliyunTTS(AliyunTTSConfig{Endpoint: server.URL}, tokens)
	for i := 0; i < 3; i++ {
		stream, err := a.Synthesize(context.Background(), testRequest)
		require.NoError(t, err)
		stream.Body.Close()
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&tokens.calls))
}

func TestAliyunTTS_CallerCancellationAbortsUpstream(t *testing.T) {
	aborted := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte(testWAV))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(aborted)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	a := NewAliyunTTS(AliyunTTSConfig{Endpoint: server.URL}, &staticTokens{token: "tok"})
	stream, err := a.Synthesize(ctx, testRequest)
	require.NoError(t, err)
	defer stream.Body.Close()

	cancel()

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request was not aborted after caller cancellation")
	}
}

func TestAliyunTTS_NetworkErrorHidesURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	a := NewAliyunTTS(AliyunTTSConfig{Endpoint: url, Method: http.MethodGet}, &staticTokens{token: "secret-token"})
	_, err := a.Synthesize(context.Background(), testRequest)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindProvider))
	assert.NotContains(t, err.Error(), "secret-token")
}
