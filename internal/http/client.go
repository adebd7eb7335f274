package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
	"github.com/hashicorp/go-retryablehttp"
)

// Static errors for err113 compliance.
var (
	ErrNoTokenProvider = fmt.Errorf("%w: request needs a token but the client has no token provider", cloudcore.ErrValidation)
	ErrMethodRequired  = fmt.Errorf("%w: request method is required", cloudcore.ErrValidation)
)

// TokenProvider supplies tokens for authenticated requests.
type TokenProvider interface {
	// GetToken returns a usable token id for identity, from cache when possible.
	GetToken(ctx context.Context, identity cloudcore.Credential) (string, error)
	// RefreshToken re-authenticates identity and returns the new token id.
	RefreshToken(ctx context.Context, identity cloudcore.Credential) (string, error)
}

// Client executes requests against a cloud service, attaching a token and
// re-authenticating once when the token is rejected.
type Client struct {
	baseURL       string
	httpClient    *retryablehttp.Client
	tokenProvider TokenProvider
	identity      *cloudcore.Credential
	logger        cloudcore.Logger
	debug         bool
	userAgent     string
	interceptors  *cloudcore.InterceptorChain
	statusPolicy  cloudcore.StatusPolicy
}

// Request represents an HTTP request.
type Request struct {
	Method string
	Path   string
	// BaseURL overrides the client's base URL, e.g. with a resolved endpoint.
	BaseURL string
	Query   url.Values
	Body    interface{}
	Headers map[string]string
	// Identity selects the credential whose token is attached. When nil the
	// client's default identity is used; when that is nil too the request
	// is sent without a token.
	Identity *cloudcore.Credential
	// AcceptStatus lists non-2xx codes that are not errors for this call.
	AcceptStatus []int
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	// Attempts is 2 when the request was resent after a rejected token.
	Attempts int
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger cloudcore.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables request/response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithRetryConfig sets the transient retry budget of the transport.
func WithRetryConfig(maxRetries int, minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = maxRetries
		c.httpClient.RetryWaitMin = minWait
		c.httpClient.RetryWaitMax = maxWait
	}
}

// WithHTTPTimeout sets the per-attempt timeout.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.HTTPClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying http.Client, e.g. to install a
// custom transport.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient.HTTPClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithInterceptors installs request/response interceptors.
func WithInterceptors(chain *cloudcore.InterceptorChain) Option {
	return func(c *Client) {
		c.interceptors = chain
	}
}

// WithStatusPolicy replaces the default 2xx-only status policy.
func WithStatusPolicy(policy cloudcore.StatusPolicy) Option {
	return func(c *Client) {
		c.statusPolicy = policy
	}
}

// WithIdentity sets the identity used by requests that name none.
func WithIdentity(identity cloudcore.Credential) Option {
	return func(c *Client) {
		c.identity = &identity
	}
}

// NewClient creates a new HTTP client. tokenProvider may be nil for clients
// that only send unauthenticated requests.
func NewClient(baseURL string, tokenProvider TokenProvider, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = constants.DefaultRetryMax
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.HTTPClient.Timeout = constants.DefaultHTTPTimeout
	retryClient.Logger = nil
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    retryClient,
		tokenProvider: tokenProvider,
		logger:        cloudcore.NopLogger{},
		userAgent:     constants.DefaultUserAgent,
		statusPolicy:  cloudcore.DefaultStatusPolicy(),
	}

	for _, opt := range opts {
		opt(client)
	}

	client.logger = cloudcore.LoggerOrNop(client.logger)

	return client
}

// checkRetry retries connection errors, 429 and 5xx. A 401 is never retried
// here; Do handles it by re-authenticating.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusUnauthorized {
		return false, nil
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Do executes a request. A 401 on the first send forces a token refresh and
// one resend; the final response is then checked against the status policy.
// The response is returned alongside a status error so callers can inspect it.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Method == "" {
		return nil, ErrMethodRequired
	}

	identity := req.Identity
	if identity == nil {
		identity = c.identity
	}

	if identity != nil && c.tokenProvider == nil {
		return nil, ErrNoTokenProvider
	}

	target, err := c.buildURL(req)
	if err != nil {
		return nil, err
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	var token string

	if identity != nil {
		token, err = c.tokenProvider.GetToken(ctx, *identity)
		if err != nil {
			return nil, fmt.Errorf("getting token for %s: %w", identity, err)
		}
	}

	out := outgoing{target: target, body: body, token: token, attempt: 1}
	if identity != nil {
		out.identity = identity.String()
	}

	resp, err := c.send(ctx, req, out)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && identity != nil {
		c.logger.Info("Token rejected, re-authenticating", map[string]interface{}{
			"method":   req.Method,
			"url":      target,
			"identity": identity.String(),
		})

		token, err = c.tokenProvider.RefreshToken(ctx, *identity)
		if err != nil {
			return resp, fmt.Errorf("re-authenticating %s after 401: %w", identity, err)
		}

		out.token = token
		out.attempt = 2

		resp, err = c.send(ctx, req, out)
		if err != nil {
			return nil, err
		}
	}

	policy := c.statusPolicy
	if len(req.AcceptStatus) > 0 {
		policy = policy.With(req.AcceptStatus...)
	}

	err = policy.Validate(req.Method, target, resp.StatusCode, resp.Body)
	if err != nil {
		return resp, err
	}

	return resp, nil
}

// DoJSON executes a request and decodes a non-empty response body into out.
func (c *Client) DoJSON(ctx context.Context, req *Request, out interface{}) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return resp, err
	}

	if out != nil && len(bytes.TrimSpace(resp.Body)) > 0 {
		err = json.Unmarshal(resp.Body, out)
		if err != nil {
			return resp, fmt.Errorf("failed to parse response from %s %s: %w", req.Method, req.Path, err)
		}
	}

	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
	})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPut,
		Path:   path,
		Body:   body,
	})
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPatch,
		Path:   path,
		Body:   body,
	})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodDelete,
		Path:   path,
	})
}

// outgoing is one send of a Do call.
type outgoing struct {
	target   string
	body     []byte
	token    string
	identity string
	attempt  int
}

func (c *Client) send(ctx context.Context, req *Request, out outgoing) (*Response, error) {
	target, body, token, attempt := out.target, out.body, out.token, out.attempt

	var rawBody interface{}
	if body != nil {
		rawBody = body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, target, rawBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		httpReq.Header.Set(constants.AuthTokenHeader, token)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	intercepted := &cloudcore.Request{
		Method:   req.Method,
		URL:      target,
		Headers:  httpReq.Header,
		Body:     body,
		Identity: out.identity,
		Attempt:  attempt,
	}

	if c.interceptors != nil {
		err = c.interceptors.ExecuteRequestInterceptors(ctx, intercepted)
		if err != nil {
			return nil, err
		}
	}

	if c.debug {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method":  req.Method,
			"url":     target,
			"headers": redactHeaders(httpReq.Header),
			"attempt": attempt,
		})
	}

	start := time.Now()

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		err = transportError(ctx, req.Method, target, err)
		c.afterResponse(ctx, intercepted, &cloudcore.Response{Error: err})

		return nil, err
	}

	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		err = transportError(ctx, req.Method, target, fmt.Errorf("reading response body: %w", err))
		c.afterResponse(ctx, intercepted, &cloudcore.Response{StatusCode: httpResp.StatusCode, Error: err})

		return nil, err
	}

	if c.debug {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"status":   httpResp.StatusCode,
			"duration": time.Since(start).String(),
			"size":     len(respBody),
		})
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
		Attempts:   attempt,
	}

	c.afterResponse(ctx, intercepted, &cloudcore.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	})

	return resp, nil
}

func (c *Client) afterResponse(ctx context.Context, req *cloudcore.Request, resp *cloudcore.Response) {
	if c.interceptors == nil {
		return
	}

	err := c.interceptors.ExecuteResponseInterceptors(ctx, req, resp)
	if err != nil {
		c.logger.Warn("Response interceptor failed", map[string]interface{}{
			"url":   req.URL,
			"error": err.Error(),
		})
	}
}

func (c *Client) buildURL(req *Request) (string, error) {
	base := c.baseURL
	if req.BaseURL != "" {
		base = strings.TrimRight(req.BaseURL, "/")
	}

	path := req.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	parsed, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("%w: invalid URL %q: %w", cloudcore.ErrValidation, base+path, err)
	}

	if len(req.Query) > 0 {
		parsed.RawQuery = req.Query.Encode()
	}

	return parsed.String(), nil
}

func encodeBody(body interface{}) ([]byte, error) {
	switch typed := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return typed, nil
	case json.RawMessage:
		return typed, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}

		return data, nil
	}
}

func transportError(ctx context.Context, method, target string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s %s: %w", cloudcore.ErrCanceled, method, target, context.Cause(ctx))
	}

	return fmt.Errorf("%w: %s %s: %w", cloudcore.ErrTransport, method, target, err)
}

func redactHeaders(headers http.Header) map[string]string {
	redacted := make(map[string]string, len(headers))

	for key := range headers {
		value := headers.Get(key)
		if strings.EqualFold(key, constants.AuthTokenHeader) || strings.EqualFold(key, "Authorization") {
			value = constants.MaskedSecret
		}

		redacted[key] = value
	}

	return redacted
}
