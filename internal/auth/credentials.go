// Package auth obtains NLS access tokens on behalf of proxy callers. It owns the
// provider's request-signing scheme so nothing else needs to know about it.
package auth

import "log/slog"

// Credentials identify the proxy to the provider. They are loaded once at startup
// and must never reach a log line or a response body.
type Credentials struct {
	AccessKeyID     string
	AccessKeySecret string
	AppKey          string
}

func (c Credentials) String() string {
	return "Credentials{AccessKeyID:" + redact(c.AccessKeyID) + " AccessKeySecret:" + redact(c.AccessKeySecret) + " AppKey:" + redact(c.AppKey) + "}"
}

func (c Credentials) GoString() string {
	return c.String()
}

// LogValue keeps secrets out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("access_key_id", redact(c.AccessKeyID)),
		slog.String("access_key_secret", redact(c.AccessKeySecret)),
		slog.String("app_key", redact(c.AppKey)),
	)
}

func redact(s string) string {
	if s == "" {
		return "<unset>"
	}
	return "[REDACTED]"
}
