package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/nikhilbhutani/ttsproxy/internal/apperrors"
)

const (
	DefaultTokenEndpoint = "https://nls-meta.cn-shanghai.aliyuncs.com"
	DefaultRegion        = "cn-shanghai"
	DefaultTokenTimeout  = 5 * time.Second

	apiVersion       = "2019-02-28"
	timestampLayout  = "2006-01-02T15:04:05Z"
	maxTokenResponse = 64 << 10

	opCreateToken = "create_token"
)

type TokenClientConfig struct {
	Endpoint string
	Region   string
	Timeout  time.Duration
}

// AccessToken is a short-lived NLS token. ExpireTime is informational only;
// tokens are never reused across requests.
type AccessToken struct {
	ID         string
	ExpireTime time.Time
}

// TokenClient issues signed CreateToken requests against the NLS meta endpoint.
type TokenClient struct {
	creds      Credentials
	cfg        TokenClientConfig
	httpClient *http.Client
	now        func() time.Time
	nonce      func() string
}

func NewTokenClient(creds Credentials, cfg TokenClientConfig) *TokenClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultTokenEndpoint
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTokenTimeout
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	return &TokenClient{
		creds:      creds,
		cfg:        cfg,
		httpClient: &http.Client{},
		now:        time.Now,
		nonce:      uuid.NewString,
	}
}

// Token satisfies the synthesis forwarder's token source.
func (c *TokenClient) Token(ctx context.Context) (string, error) {
	tok, err := c.CreateToken(ctx)
	if err != nil {
		return "", err
	}
	return tok.ID, nil
}

// CreateToken acquires a fresh token. Every call carries a new nonce and
// timestamp; failures are returned as auth errors and never retried here.
func (c *TokenClient) CreateToken(ctx context.Context) (*AccessToken, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	query, err := Sign(http.MethodGet, c.tokenParams(), c.creds.AccessKeySecret)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, opCreateToken, "sign token request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"/?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, opCreateToken, "create token request", apperrors.WithoutURL(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Auth(opCreateToken, apperrors.ReasonNetwork, "token request failed", apperrors.WithoutURL(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	if err != nil {
		return nil, apperrors.Auth(opCreateToken, apperrors.ReasonNetwork, "read token response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, protocolError(resp.StatusCode, fmt.Sprintf("token endpoint returned %d%s", resp.StatusCode, providerMessage(body)), body)
	}

	return parseToken(resp.StatusCode, body)
}

func (c *TokenClient) tokenParams() map[string]string {
	return map[string]string{
		"AccessKeyId":      c.creds.AccessKeyID,
		"Action":           "CreateToken",
		"Format":           "JSON",
		"RegionId":         c.cfg.Region,
		"Version":          apiVersion,
		"SignatureMethod":  "HMAC-SHA1",
		"SignatureVersion": "1.0",
		"SignatureNonce":   c.nonce(),
		"Timestamp":        c.now().UTC().Format(timestampLayout),
	}
}

func parseToken(status int, body []byte) (*AccessToken, error) {
	if !gjson.ValidBytes(body) {
		return nil, protocolError(status, "malformed token response", body)
	}

	id := gjson.GetBytes(body, "Token.Id").String()
	if id == "" {
		return nil, protocolError(status, "token missing from response"+providerMessage(body), body)
	}

	tok := &AccessToken{ID: id}
	if exp := gjson.GetBytes(body, "Token.ExpireTime").Int(); exp > 0 {
		tok.ExpireTime = time.Unix(exp, 0)
	}
	return tok, nil
}

func protocolError(status int, message string, body []byte) error {
	e := apperrors.Auth(opCreateToken, apperrors.ReasonProtocol, message, nil)
	e.Status = status
	e.Detail = apperrors.TruncateDetail(body)
	return e
}

// providerMessage pulls the human-readable error out of an NLS meta response.
func providerMessage(body []byte) string {
	for _, path := range []string{"ErrMsg", "Message"} {
		if msg := gjson.GetBytes(body, path).String(); msg != "" {
			return ": " + msg
		}
	}
	return ""
}
