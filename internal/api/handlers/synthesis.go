package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/ttsproxy/internal/apperrors"
	"github.com/nikhilbhutani/ttsproxy/internal/metrics"
	"github.com/nikhilbhutani/ttsproxy/internal/multimodal/tts"
)

const relayBufferSize = 32 << 10

type SynthesisHandler struct {
	validator *tts.Validator
	provider  tts.TTSProvider
	metrics   *metrics.Metrics
}

func NewSynthesisHandler(v *tts.Validator, p tts.TTSProvider, m *metrics.Metrics) *SynthesisHandler {
	return &SynthesisHandler{validator: v, provider: p, metrics: m}
}

// Speak validates the caller's query, synthesizes it and relays the audio as it
// arrives. Nothing is written to the caller until the provider has answered
// with audio, so every failure before that point gets a proper error status.
func (h *SynthesisHandler) Speak(w http.ResponseWriter, r *http.Request) {
	reqID := chimiddleware.GetReqID(r.Context())

	req, err := h.validator.Validate(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	slog.Info("synthesizing",
		"provider", h.provider.Name(),
		"chars", utf8.RuneCountInString(req.Text),
		"voice", req.Voice,
		"sample_rate", req.SampleRate,
		"request_id", reqID,
	)

	stream, err := h.provider.Synthesize(r.Context(), *req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer stream.Body.Close()

	w.Header().Set("Content-Type", tts.ContentTypeWAV)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	n, err := relay(w, stream.Body)
	h.metrics.AddAudioBytes(n)
	if err != nil {
		h.metrics.RecordSynthesis(metrics.OutcomeAborted)
		slog.Warn("audio stream aborted", "error", err, "bytes", n, "request_id", reqID)
		stream.Body.Close()
		// Headers are already sent; abort so the caller sees a truncated body.
		panic(http.ErrAbortHandler)
	}

	h.metrics.RecordSynthesis(metrics.OutcomeOK)
	slog.Debug("audio relayed", "bytes", n, "upstream_content_type", stream.ContentType, "request_id", reqID)
}

func (h *SynthesisHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.metrics.RecordSynthesis(outcomeFor(err))
	writeError(w, r, err)
}

// relay copies src to w, flushing after every chunk so playback can start early.
func relay(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, relayBufferSize)

	var total int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			written, err := w.Write(buf[:n])
			total += int64(written)
			if err != nil {
				return total, err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return total, err
			}
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

func outcomeFor(err error) string {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return metrics.OutcomeValidation
	case apperrors.KindAuth:
		return metrics.OutcomeAuth
	case apperrors.KindProvider:
		return metrics.OutcomeProvider
	default:
		return metrics.OutcomeInternal
	}
}
