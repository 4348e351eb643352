// Package client issues authenticated HTTP requests against the portal
// backend, attaching a resolved bearer token and recovering once from stale
// credentials.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// clientHeader identifies this SDK to the backend on every request.
const clientHeader = "X-UNI360-Client"

// TokenSource is the slice of the token resolver the executor depends on.
type TokenSource interface {
	Resolve(ctx context.Context) (string, error)
	ForceRefresh()
}

// Request describes one call against the backend. Exactly one of JSON and
// Body may be set; Body is sent as-is with ContentType, which lets callers
// ship multipart or other binary payloads without a JSON content type.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Header      http.Header
	JSON        any
	Body        io.Reader
	ContentType string
}

// Response is the outcome of a successful (2xx) call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsJSON reports whether the response declared a JSON content type.
func (r *Response) IsJSON() bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

// Decode unmarshals a JSON response body into v.
func (r *Response) Decode(v any) error {
	return errors.Wrap(json.Unmarshal(r.Body, v), "[Response.Decode] json.Unmarshal")
}

// Client executes authenticated requests. On a 401 it forces a token refresh
// and retries exactly once with the new token; a second 401, or any other
// non-2xx status, is surfaced as a *RequestFailedError. That single bounded
// retry is the whole recovery policy — no backoff, no further attempts.
type Client struct {
	baseURL    string
	clientID   string
	tokens     TokenSource
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option mutates a Client at construction time.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func New(baseURL, clientID string, tokens TokenSource, logger zerolog.Logger, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "api_client").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Do executes req and returns the parsed response. The request body is
// buffered up front so the single 401 retry can replay it.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	accessToken, err := c.tokens.Resolve(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Do] resolve token")
	}

	resp, err := c.send(ctx, req, body, contentType, accessToken)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Debug().Str("path", req.Path).Msg("401 received, refreshing token and retrying once")
		c.tokens.ForceRefresh()

		accessToken, err = c.tokens.Resolve(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.Do] resolve token after 401")
		}
		resp, err = c.send(ctx, req, body, contentType, accessToken)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestFailedError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return resp, nil
}

// DoJSON executes req and decodes a JSON response body into out. A nil out
// discards the body.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(out)
}

func (c *Client) send(ctx context.Context, req Request, body []byte, contentType, accessToken string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.requestURL(req), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "[Client.send] http.NewRequestWithContext")
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set(clientHeader, c.clientID)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.send] httpClient.Do")
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.send] read response body")
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: respBody}, nil
}

func (c *Client) requestURL(req Request) string {
	u := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

// encodeBody buffers the request body. JSON payloads get the JSON content
// type; raw bodies keep whatever the caller declared.
func encodeBody(req Request) ([]byte, string, error) {
	if req.JSON != nil {
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", errors.Wrap(err, "[encodeBody] json.Marshal")
		}
		return data, "application/json", nil
	}
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, "", errors.Wrap(err, "[encodeBody] read body")
		}
		return data, req.ContentType, nil
	}
	if req.Method == http.MethodPost || req.Method == http.MethodPut || req.Method == http.MethodPatch {
		return nil, "application/json", nil
	}
	return nil, "", nil
}
