package httpclient

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/herdbook/herdbook/internal/common/logtrace"
	"github.com/herdbook/herdbook/internal/common/uuid"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultLoginPath is the credential exchange endpoint. A 401 from it means bad
	// credentials, not an expired session.
	DefaultLoginPath = "/auth/login"
	// RequestIDHeader carries a per-request identifier for correlating logs.
	RequestIDHeader = "X-Request-ID"

	defaultTimeout = 30 * time.Second
)

// Client issues authenticated requests against the herd API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    SessionProvider
	loginPath  string
	userAgent  string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLoginPath changes the path treated as the credential exchange endpoint.
func WithLoginPath(p string) ClientOption {
	return func(c *Client) {
		if p != "" {
			c.loginPath = normalizePath(p)
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a Client for the API rooted at baseURL. A nil session behaves as a
// permanently signed-out user.
func New(baseURL string, session SessionProvider, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, ErrInvalidRequest.New("api base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, ErrInvalidRequest.New("invalid api base URL: " + baseURL)
	}
	if session == nil {
		session = anonymousSession{}
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		session:    session,
		loginPath:  DefaultLoginPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestOptions describes a single API call. The zero value is a GET with no body.
type RequestOptions struct {
	Method  string            // defaults to GET
	Body    any               // []byte, string and json.RawMessage are sent verbatim; anything else is JSON-encoded
	Headers map[string]string // applied last, replacing defaults; an empty value removes the header
	Query   url.Values
}

// Response is a successful API response with its raw body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NoContent is returned for every 204 response. Compare by identity.
var NoContent = &Response{StatusCode: http.StatusNoContent}

// IsNoContent reports whether r is the NoContent sentinel.
func (r *Response) IsNoContent() bool {
	return r == NoContent
}

// Decode unmarshals the body into v. It is a no-op for NoContent.
func (r *Response) Decode(v any) error {
	if r == nil || r.IsNoContent() {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return ErrMalformedResponse.Err(err)
	}
	return nil
}

// Do performs the request and returns the response on 2xx. Every other outcome is
// returned as a classified error; see the Kind constants.
func (c *Client) Do(ctx context.Context, path string, opts RequestOptions) (*Response, error) {
	token := c.session.Token()

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, ErrInvalidRequest.Err(err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, opts.Query), body)
	if err != nil {
		return nil, ErrInvalidRequest.Err(err)
	}

	requestID := logtrace.RequestIdFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewRequestID()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range opts.Headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}

	logger := log.Ctx(ctx).With().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Logger()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug().Err(err).Msg("request canceled")
			return nil, ErrCanceled.Err(ctx.Err(), err)
		}
		logger.Debug().Err(err).Msg("request failed before a response was received")
		return nil, ErrNetworkUnavailable.Err(err)
	}
	defer resp.Body.Close()

	logger = logger.With().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Logger()

	if resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		logger.Debug().Msg("request completed")
		return NoContent, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCanceled.Err(ctx.Err(), err)
		}
		logger.Debug().Err(err).Msg("failed to read response body")
		return nil, ErrNetworkUnavailable.Err(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := c.classify(ctx, path, token, resp, raw)
		logger.Debug().Err(err).Msg("request rejected")
		return nil, err
	}

	if !gjson.ValidBytes(raw) {
		logger.Debug().Int("body_bytes", len(raw)).Msg("response body is not valid JSON")
		return nil, ErrMalformedResponse.Err(errors.New("invalid JSON body")).SetStatusCode(resp.StatusCode)
	}

	logger.Debug().Msg("request completed")
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
	}, nil
}

// FetchResponse is Do on any Doer.
func FetchResponse(ctx context.Context, d Doer, path string, opts RequestOptions) (*Response, error) {
	return d.Do(ctx, path, opts)
}

// Fetch performs the request and decodes the success body into T. A 204 yields the
// zero T.
func Fetch[T any](ctx context.Context, d Doer, path string, opts RequestOptions) (T, error) {
	var out T
	resp, err := d.Do(ctx, path, opts)
	if err != nil {
		return out, err
	}
	if err := resp.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// classify turns a non-2xx response into an error, tearing the session down when an
// authenticated request is rejected as unauthorized.
func (c *Client) classify(ctx context.Context, path, token string, resp *http.Response, raw []byte) error {
	message := parseErrorBody(raw).messageOr(statusLine(resp))

	if resp.StatusCode == http.StatusUnauthorized {
		if c.isLoginPath(path) {
			return ErrRequestFailed.New(message).SetStatusCode(resp.StatusCode)
		}
		if token != "" {
			log.Ctx(ctx).Info().Str("path", path).Msg("session expired")
			c.session.ClearSession()
			c.session.OnSessionExpired()
			return ErrSessionExpired.New(ErrSessionExpired.Error())
		}
	}
	return ErrRequestFailed.New(message).SetStatusCode(resp.StatusCode)
}

func (c *Client) isLoginPath(path string) bool {
	p, _, _ := strings.Cut(path, "?")
	return normalizePath(p) == c.loginPath
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + ensureLeadingSlash(path)
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}
	return u
}

func ensureLeadingSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

func normalizePath(p string) string {
	p = ensureLeadingSlash(p)
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case stdjson.RawMessage:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}
