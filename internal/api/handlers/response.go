package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/ttsproxy/internal/apperrors"
)

const msgSynthesisFailed = "TTS synthesis failed"

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError is the single place errors become HTTP responses. Auth details
// stay in the server log; provider payloads are passed through for operators.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	reqID := chimiddleware.GetReqID(r.Context())

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		slog.Error("unexpected error", "error", err, "request_id", reqID)
		writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}

	switch appErr.Kind {
	case apperrors.KindValidation:
		writeJSON(w, status, map[string]string{"error": appErr.Message})

	case apperrors.KindAuth:
		slog.Error("token acquisition failed",
			"error", appErr,
			"reason", appErr.Reason,
			"upstream_status", appErr.Status,
			"provider_response", appErr.Detail,
			"request_id", reqID,
		)
		writeJSON(w, status, map[string]string{
			"error":   msgSynthesisFailed,
			"details": "could not authenticate with the speech provider",
		})

	case apperrors.KindProvider:
		slog.Error("synthesis failed",
			"error", appErr,
			"upstream_status", appErr.Status,
			"provider_response", appErr.Detail,
			"request_id", reqID,
		)
		body := map[string]interface{}{
			"error":   msgSynthesisFailed,
			"details": appErr.Message,
		}
		if appErr.Detail != "" {
			if json.Valid([]byte(appErr.Detail)) {
				body["provider_response"] = json.RawMessage(appErr.Detail)
			} else {
				body["provider_response"] = appErr.Detail
			}
		}
		writeJSON(w, status, body)

	default:
		slog.Error("internal error", "error", appErr, "request_id", reqID)
		writeJSON(w, status, map[string]string{"error": "internal server error"})
	}
}
