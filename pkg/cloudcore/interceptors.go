package cloudcore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/juju/clock"
)

const metricsStartKey = "cloudcore.metrics.start"

// Request is one send of an executor call as seen by interceptors. A call
// resent after a rejected token is intercepted twice, with Attempt 1 and 2.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
	// Identity names the credential whose token is attached; empty for
	// anonymous calls such as authentication itself.
	Identity string
	Attempt  int
	// Metadata carries values from request to response interceptors.
	Metadata map[string]interface{}
}

// Response is the outcome of one send. Error is set when no response arrived.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Error      error
}

// Failed reports whether the send produced no response or an error status.
func (r *Response) Failed() bool {
	return r.Error != nil || r.StatusCode >= http.StatusBadRequest
}

// RequestInterceptor runs before a request is sent and may modify its headers.
// Returning an error aborts the call.
type RequestInterceptor func(ctx context.Context, req *Request) error

// ResponseInterceptor runs after each send.
type ResponseInterceptor func(ctx context.Context, req *Request, resp *Response) error

// InterceptorChain is an ordered set of interceptors. It may be shared by
// concurrent calls and extended while in use.
type InterceptorChain struct {
	mu       sync.RWMutex
	request  []RequestInterceptor
	response []ResponseInterceptor
}

// NewInterceptorChain creates an empty chain.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{}
}

// AddRequestInterceptor appends a request interceptor.
func (c *InterceptorChain) AddRequestInterceptor(interceptor RequestInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.request = append(c.request, interceptor)
}

// AddResponseInterceptor appends a response interceptor.
func (c *InterceptorChain) AddResponseInterceptor(interceptor ResponseInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.response = append(c.response, interceptor)
}

// ExecuteRequestInterceptors runs the request interceptors in order, stopping
// at the first error.
func (c *InterceptorChain) ExecuteRequestInterceptors(ctx context.Context, req *Request) error {
	c.mu.RLock()
	interceptors := c.request
	c.mu.RUnlock()

	for i, interceptor := range interceptors {
		err := interceptor(ctx, req)
		if err != nil {
			return fmt.Errorf("request interceptor %d: %w", i, err)
		}
	}

	return nil
}

// ExecuteResponseInterceptors runs the response interceptors in order,
// stopping at the first error.
func (c *InterceptorChain) ExecuteResponseInterceptors(ctx context.Context, req *Request, resp *Response) error {
	c.mu.RLock()
	interceptors := c.response
	c.mu.RUnlock()

	for i, interceptor := range interceptors {
		err := interceptor(ctx, req, resp)
		if err != nil {
			return fmt.Errorf("response interceptor %d: %w", i, err)
		}
	}

	return nil
}

// LoggingInterceptor logs each send at debug level. Headers are not logged.
func LoggingInterceptor(logger Logger) RequestInterceptor {
	return func(_ context.Context, req *Request) error {
		logger.Debug("Sending request", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL,
			"identity": req.Identity,
			"attempt":  req.Attempt,
		})

		return nil
	}
}

// LoggingResponseInterceptor logs each outcome: transport failures at error
// level, everything else at debug.
func LoggingResponseInterceptor(logger Logger) ResponseInterceptor {
	return func(_ context.Context, req *Request, resp *Response) error {
		fields := map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL,
			"identity": req.Identity,
			"attempt":  req.Attempt,
			"status":   resp.StatusCode,
		}

		if resp.Error != nil {
			fields["error"] = resp.Error.Error()
			logger.Error("Request failed", fields)

			return nil
		}

		logger.Debug("Received response", fields)

		return nil
	}
}

// HeaderInterceptor sets fixed headers on every send.
func HeaderInterceptor(headers map[string]string) RequestInterceptor {
	return func(_ context.Context, req *Request) error {
		if req.Headers == nil {
			req.Headers = make(http.Header, len(headers))
		}

		for key, value := range headers {
			req.Headers.Set(key, value)
		}

		return nil
	}
}

// Metrics are the counters kept per "METHOD URL", the URL without its query.
type Metrics struct {
	TotalRequests int64
	TotalErrors   int64
	// Unauthorized counts sends answered with 401.
	Unauthorized int64
	// Resent counts sends made after a rejected token.
	Resent          int64
	TotalLatency    time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time
}

// MetricsOption configures a MetricsCollector.
type MetricsOption func(*MetricsCollector)

// WithMetricsClock sets the clock used to time sends.
func WithMetricsClock(clk clock.Clock) MetricsOption {
	return func(m *MetricsCollector) {
		m.clock = clk
	}
}

// MetricsCollector aggregates Metrics from MetricsRequestInterceptor and
// MetricsResponseInterceptor.
type MetricsCollector struct {
	mu       sync.Mutex
	clock    clock.Clock
	metrics  map[string]*Metrics
	onChange func(endpoint string, metrics Metrics)
}

// NewMetricsCollector creates a collector timed by the wall clock unless a
// clock option is given.
func NewMetricsCollector(opts ...MetricsOption) *MetricsCollector {
	m := &MetricsCollector{
		clock:   clock.WallClock,
		metrics: make(map[string]*Metrics),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// SetOnChange registers fn to be called, outside the collector's lock, after
// every recorded send.
func (m *MetricsCollector) SetOnChange(fn func(endpoint string, metrics Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onChange = fn
}

// GetMetrics returns a copy of the metrics for endpoint, or nil.
func (m *MetricsCollector) GetMetrics(endpoint string) *Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics, ok := m.metrics[endpoint]
	if !ok {
		return nil
	}

	snapshot := *metrics

	return &snapshot
}

// Snapshot returns a copy of every endpoint's metrics.
func (m *MetricsCollector) Snapshot() map[string]Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]Metrics, len(m.metrics))
	for endpoint, metrics := range m.metrics {
		snapshot[endpoint] = *metrics
	}

	return snapshot
}

func (m *MetricsCollector) record(req *Request, resp *Response) (string, Metrics, func(string, Metrics)) {
	endpoint := metricsKey(req)
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	metrics, ok := m.metrics[endpoint]
	if !ok {
		metrics = &Metrics{}
		m.metrics[endpoint] = metrics
	}

	metrics.TotalRequests++
	metrics.LastRequestTime = now

	if start, ok := req.Metadata[metricsStartKey].(time.Time); ok {
		metrics.TotalLatency += now.Sub(start)
		metrics.AverageLatency = metrics.TotalLatency / time.Duration(metrics.TotalRequests)
	}

	if resp.Failed() {
		metrics.TotalErrors++
	}

	if resp.StatusCode == http.StatusUnauthorized {
		metrics.Unauthorized++
	}

	if req.Attempt > 1 {
		metrics.Resent++
	}

	return endpoint, *metrics, m.onChange
}

// MetricsRequestInterceptor stamps each send with its start time.
func MetricsRequestInterceptor(collector *MetricsCollector) RequestInterceptor {
	return func(_ context.Context, req *Request) error {
		if req.Metadata == nil {
			req.Metadata = make(map[string]interface{})
		}

		req.Metadata[metricsStartKey] = collector.clock.Now()

		return nil
	}
}

// MetricsResponseInterceptor records the outcome of each send.
func MetricsResponseInterceptor(collector *MetricsCollector) ResponseInterceptor {
	return func(_ context.Context, req *Request, resp *Response) error {
		endpoint, snapshot, onChange := collector.record(req, resp)
		if onChange != nil {
			onChange(endpoint, snapshot)
		}

		return nil
	}
}

func metricsKey(req *Request) string {
	target := req.URL

	parsed, err := url.Parse(req.URL)
	if err == nil {
		parsed.RawQuery = ""
		parsed.Fragment = ""
		target = parsed.String()
	}

	return req.Method + " " + target
}
