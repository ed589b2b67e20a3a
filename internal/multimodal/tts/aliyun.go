package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nikhilbhutani/ttsproxy/internal/apperrors"
)

const (
	DefaultAliyunEndpoint   = "https://nls-gateway-cn-shanghai.aliyuncs.com/stream/v1/tts"
	DefaultSynthesisTimeout = 30 * time.Second

	maxErrorBody = 64 << 10
	opSynthesize = "synthesize"
)

// AliyunTTSConfig configures the NLS streaming synthesis gateway. Method is
// POST (JSON body) or GET (query parameters); the gateway accepts both.
type AliyunTTSConfig struct {
	Endpoint string
	AppKey   string
	Method   string
	Timeout  time.Duration
}

// AliyunTTS forwards synthesis requests to NLS, acquiring a fresh token for each.
type AliyunTTS struct {
	cfg        AliyunTTSConfig
	tokens     TokenSource
	httpClient *http.Client
}

func NewAliyunTTS(cfg AliyunTTSConfig, tokens TokenSource) *AliyunTTS {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultAliyunEndpoint
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.Method != http.MethodGet {
		cfg.Method = http.MethodPost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSynthesisTimeout
	}
	return &AliyunTTS{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{},
	}
}

func (a *AliyunTTS) Name() string { return "aliyun-nls" }

// Synthesize returns the provider's audio response unread. Anything that is not
// a 2xx audio response becomes a provider error carrying the gateway's payload.
func (a *AliyunTTS) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisStream, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)

	httpReq, err := a.newRequest(ctx, token, req)
	if err != nil {
		cancel()
		return nil, apperrors.Wrap(apperrors.KindInternal, opSynthesize, "create synthesis request", apperrors.WithoutURL(err))
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, apperrors.Wrap(apperrors.KindProvider, opSynthesize, "synthesis request failed", apperrors.WithoutURL(err))
	}

	if !isAudioResponse(resp) {
		defer cancel()
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := fmt.Sprintf("synthesis failed (status %d, content-type %q)%s",
			resp.StatusCode, resp.Header.Get("Content-Type"), gatewayMessage(body))
		if readErr != nil {
			msg += fmt.Sprintf(" (error body incomplete: %v)", apperrors.WithoutURL(readErr))
		}
		return nil, apperrors.Provider(opSynthesize, resp.StatusCode, msg, apperrors.TruncateDetail(body))
	}

	return &SynthesisStream{
		Body:          &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

func (a *AliyunTTS) newRequest(ctx context.Context, token string, req SynthesisRequest) (*http.Request, error) {
	if a.cfg.Method == http.MethodGet {
		q := url.Values{}
		q.Set("appkey", a.cfg.AppKey)
		q.Set("token", token)
		q.Set("text", req.Text)
		q.Set("format", req.Format)
		q.Set("sample_rate", strconv.Itoa(req.SampleRate))
		q.Set("voice", req.Voice)
		q.Set("volume", strconv.Itoa(req.Volume))
		q.Set("speech_rate", strconv.Itoa(req.SpeechRate))

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.Endpoint+"?"+q.Encode(), http.NoBody)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Accept", ContentTypeWAV)
		return httpReq, nil
	}

	data, err := json.Marshal(map[string]any{
		"appkey":      a.cfg.AppKey,
		"token":       token,
		"text":        req.Text,
		"format":      req.Format,
		"sample_rate": req.SampleRate,
		"voice":       req.Voice,
		"volume":      req.Volume,
		"speech_rate": req.SpeechRate,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", ContentTypeWAV)
	return httpReq, nil
}

func isAudioResponse(resp *http.Response) bool {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	ct := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	return strings.HasPrefix(ct, "audio/")
}

func gatewayMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	if msg := gjson.GetBytes(body, "message").String(); msg != "" {
		return ": " + msg
	}
	return ""
}

// cancelOnClose releases the request context once the stream is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
