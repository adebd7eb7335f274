package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	corehttp "github.com/fivetwenty-io/cloudcore/internal/http"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTokenUnavailable = errors.New("token unavailable")

// MockTokenProvider for testing.
type MockTokenProvider struct {
	mu        sync.Mutex
	token     string
	refreshed string
	err       error
	gets      int
	refreshes int
}

func (m *MockTokenProvider) GetToken(ctx context.Context, identity cloudcore.Credential) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gets++

	return m.token, m.err
}

func (m *MockTokenProvider) RefreshToken(ctx context.Context, identity cloudcore.Credential) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshes++
	m.token = m.refreshed

	return m.refreshed, nil
}

func (m *MockTokenProvider) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.refreshes
}

// MockLogger for testing.
type MockLogger struct {
	mu   sync.Mutex
	logs []map[string]interface{}
}

func (l *MockLogger) record(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = append(l.logs, map[string]interface{}{"level": level, "msg": msg, "fields": fields})
}

func (l *MockLogger) Debug(msg string, fields map[string]interface{}) { l.record("debug", msg, fields) }
func (l *MockLogger) Info(msg string, fields map[string]interface{})  { l.record("info", msg, fields) }
func (l *MockLogger) Warn(msg string, fields map[string]interface{})  { l.record("warn", msg, fields) }
func (l *MockLogger) Error(msg string, fields map[string]interface{}) { l.record("error", msg, fields) }

var testIdentity = cloudcore.Credential{Username: "alice", APIKey: "key", TenantID: "123456"}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Do(t *testing.T) {
	t.Parallel()
	t.Run("successful request", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/v1/123456/volumes", request.URL.Path)
			assert.Equal(t, "GET", request.Method)
			assert.Equal(t, "test-token", request.Header.Get("X-Auth-Token"))
			assert.Equal(t, "application/json", request.Header.Get("Accept"))

			response := map[string]string{"id": "vol-1", "status": "available"}
			_ = json.NewEncoder(writer).Encode(response)
		}))
		defer server.Close()

		tokenProvider := &MockTokenProvider{token: "test-token"}
		client := corehttp.NewClient(server.URL+"/v1/123456", tokenProvider)

		req := &corehttp.Request{
			Method:   "GET",
			Path:     "/volumes",
			Identity: &testIdentity,
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 1, resp.Attempts)

		var result map[string]string

		err = json.Unmarshal(resp.Body, &result)
		require.NoError(t, err)
		assert.Equal(t, "vol-1", result["id"])
		assert.Equal(t, 0, tokenProvider.Refreshes())
	})

	t.Run("unauthenticated request carries no token", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Empty(t, request.Header.Get("X-Auth-Token"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		tokenProvider := &MockTokenProvider{token: "unused"}
		client := corehttp.NewClient(server.URL, tokenProvider)

		resp, err := client.Post(context.Background(), "/v2.0/tokens", map[string]string{"auth": "x"})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 0, tokenProvider.gets)
	})

	t.Run("request with query parameters", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/volumes", request.URL.Path)
			assert.Equal(t, "limit=2", request.URL.RawQuery)
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := corehttp.NewClient(server.URL, nil)

		req := &corehttp.Request{
			Method: "GET",
			Path:   "/volumes",
			Query:  url.Values{"limit": []string{"2"}},
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("request with body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "POST", request.Method)
			assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

			var body map[string]string

			_ = json.NewDecoder(request.Body).Decode(&body)
			assert.Equal(t, "data-1", body["name"])

			writer.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client := corehttp.NewClient(server.URL, nil)

		req := &corehttp.Request{
			Method: "POST",
			Path:   "/volumes",
			Body:   map[string]string{"name": "data-1"},
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 201, resp.StatusCode)
	})

	t.Run("error response", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusNotFound)
			_, _ = writer.Write([]byte(`{"itemNotFound":{"message":"Volume not found","code":404}}`))
		}))
		defer server.Close()

		client := corehttp.NewClient(server.URL, nil)

		req := &corehttp.Request{
			Method: "GET",
			Path:   "/volumes/invalid",
		}

		resp, err := client.Do(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, 404, resp.StatusCode)
		assert.True(t, cloudcore.IsNotFound(err))

		apiErr := &cloudcore.APIError{}
		ok := errors.As(err, &apiErr)
		require.True(t, ok)
		assert.Equal(t, "GET", apiErr.Method)
		assert.Contains(t, apiErr.Message, "Volume not found")
	})

	t.Run("accepted non-2xx status", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusConflict)
		}))
		defer server.Close()

		client := corehttp.NewClient(server.URL, nil)

		resp, err := client.Do(context.Background(), &corehttp.Request{
			Method:       "PUT",
			Path:         "/volumes/vol-1",
			AcceptStatus: []int{http.StatusConflict},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		_, err = client.Put(context.Background(), "/volumes/vol-1", nil)
		require.Error(t, err)
	})

	t.Run("custom headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "custom-value", request.Header.Get("X-Custom-Header"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := corehttp.NewClient(server.URL, nil)

		req := &corehttp.Request{
			Method: "GET",
			Path:   "/volumes",
			Headers: map[string]string{
				"X-Custom-Header": "custom-value",
			},
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("with debug logging", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(writer).Encode(map[string]string{"result": "ok"})
		}))
		defer server.Close()

		logger := &MockLogger{}
		tokenProvider := &MockTokenProvider{token: "secret-token"}
		client := corehttp.NewClient(server.URL, tokenProvider,
			corehttp.WithLogger(logger), corehttp.WithDebug(true), corehttp.WithIdentity(testIdentity))

		_, err := client.Get(context.Background(), "/volumes", nil)
		require.NoError(t, err)

		// Should have logged request and response
		require.Len(t, logger.logs, 2)
		assert.Equal(t, "HTTP Request", logger.logs[0]["msg"])
		assert.Equal(t, "HTTP Response", logger.logs[1]["msg"])

		fields, ok := logger.logs[0]["fields"].(map[string]interface{})
		require.True(t, ok)

		headers, ok := fields["headers"].(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "***", headers["X-Auth-Token"])
	})

	t.Run("token error", func(t *testing.T) {
		t.Parallel()

		client := corehttp.NewClient("http://127.0.0.1:1", &MockTokenProvider{err: errTokenUnavailable})

		_, err := client.Do(context.Background(), &corehttp.Request{
			Method:   "GET",
			Path:     "/volumes",
			Identity: &testIdentity,
		})
		require.ErrorIs(t, err, errTokenUnavailable)
	})

	t.Run("identity without token provider", func(t *testing.T) {
		t.Parallel()

		client := corehttp.NewClient("http://127.0.0.1:1", nil)

		_, err := client.Do(context.Background(), &corehttp.Request{
			Method:   "GET",
			Path:     "/volumes",
			Identity: &testIdentity,
		})
		require.ErrorIs(t, err, corehttp.ErrNoTokenProvider)
		assert.ErrorIs(t, err, cloudcore.ErrValidation)
	})
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Methods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		fn     func(*corehttp.Client, context.Context) (*corehttp.Response, error)
	}{
		{
			name:   "GET",
			method: "GET",
			fn: func(c *corehttp.Client, ctx context.Context) (*corehttp.Response, error) {
				return c.Get(ctx, "/test", nil)
			},
		},
		{
			name:   "POST",
			method: "POST",
			fn: func(c *corehttp.Client, ctx context.Context) (*corehttp.Response, error) {
				return c.Post(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "PUT",
			method: "PUT",
			fn: func(c *corehttp.Client, ctx context.Context) (*corehttp.Response, error) {
				return c.Put(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "PATCH",
			method: "PATCH",
			fn: func(c *corehttp.Client, ctx context.Context) (*corehttp.Response, error) {
				return c.Patch(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "DELETE",
			method: "DELETE",
			fn: func(c *corehttp.Client, ctx context.Context) (*corehttp.Response, error) {
				return c.Delete(ctx, "/test")
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				assert.Equal(t, testCase.method, request.Method)
				assert.Equal(t, "/test", request.URL.Path)
				writer.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := corehttp.NewClient(server.URL, nil)
			resp, err := testCase.fn(client, context.Background())
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
		})
	}
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_RetryLogic(t *testing.T) {
	t.Parallel()
	t.Run("retries on 5xx errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if attempts.Add(1) < 3 {
				writer.WriteHeader(http.StatusInternalServerError)
			} else {
				writer.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := corehttp.NewClient(server.URL, nil, corehttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("retries on rate limiting", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if attempts.Add(1) < 2 {
				writer.WriteHeader(http.StatusTooManyRequests)
			} else {
				writer.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := corehttp.NewClient(server.URL, nil, corehttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int32(2), attempts.Load())
	})

	t.Run("does not retry on client errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)

			writer.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := corehttp.NewClient(server.URL, nil, corehttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.Error(t, err)
		assert.Equal(t, 400, resp.StatusCode)
		assert.ErrorIs(t, err, cloudcore.ErrValidation)
		assert.Equal(t, int32(1), attempts.Load()) // Should not retry
	})

	t.Run("surfaces transport failures", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		serverURL := server.URL
		server.Close()

		client := corehttp.NewClient(serverURL, nil, corehttp.WithRetryConfig(0, time.Millisecond, time.Millisecond))

		_, err := client.Get(context.Background(), "/test", nil)
		require.ErrorIs(t, err, cloudcore.ErrTransport)
	})

	t.Run("reports cancellation", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client := corehttp.NewClient(server.URL, nil)

		_, err := client.Get(ctx, "/test", nil)
		require.ErrorIs(t, err, cloudcore.ErrCanceled)
		assert.NotErrorIs(t, err, cloudcore.ErrTransport)
	})
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Reauthentication(t *testing.T) {
	t.Parallel()
	t.Run("401 then 200 refreshes once", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if attempts.Add(1) == 1 {
				assert.Equal(t, "stale-token", request.Header.Get("X-Auth-Token"))
				writer.WriteHeader(http.StatusUnauthorized)

				return
			}

			assert.Equal(t, "fresh-token", request.Header.Get("X-Auth-Token"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		tokenProvider := &MockTokenProvider{token: "stale-token", refreshed: "fresh-token"}
		client := corehttp.NewClient(server.URL, tokenProvider, corehttp.WithIdentity(testIdentity))

		resp, err := client.Get(context.Background(), "/servers/srv-1", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 2, resp.Attempts)
		assert.Equal(t, 1, tokenProvider.Refreshes())
		assert.Equal(t, int32(2), attempts.Load())
	})

	t.Run("401 twice fails without a third attempt", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)
			writer.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		tokenProvider := &MockTokenProvider{token: "stale-token", refreshed: "still-bad"}
		client := corehttp.NewClient(server.URL, tokenProvider, corehttp.WithIdentity(testIdentity))

		resp, err := client.Get(context.Background(), "/servers/srv-1", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, cloudcore.ErrAuthentication)
		assert.True(t, cloudcore.IsUnauthorized(err))
		assert.Equal(t, 401, resp.StatusCode)
		assert.Equal(t, 1, tokenProvider.Refreshes())
		assert.Equal(t, int32(2), attempts.Load())
	})

	t.Run("401 without identity is not retried", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)
			writer.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		tokenProvider := &MockTokenProvider{}
		client := corehttp.NewClient(server.URL, tokenProvider)

		_, err := client.Post(context.Background(), "/v2.0/tokens", map[string]string{})
		require.ErrorIs(t, err, cloudcore.ErrAuthentication)
		assert.Equal(t, 0, tokenProvider.Refreshes())
		assert.Equal(t, int32(1), attempts.Load())
	})
}

func TestClient_DoJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`{"volume":{"id":"vol-1","status":"creating"}}`))
	}))
	defer server.Close()

	client := corehttp.NewClient(server.URL, nil)

	var out struct {
		Volume struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"volume"`
	}

	_, err := client.DoJSON(context.Background(), &corehttp.Request{Method: "GET", Path: "/volumes/vol-1"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "vol-1", out.Volume.ID)
	assert.Equal(t, "creating", out.Volume.Status)
}

func TestClient_Interceptors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "tenant-a", request.Header.Get("X-Project"))
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	collector := cloudcore.NewMetricsCollector()
	chain := cloudcore.NewInterceptorChain()
	chain.AddRequestInterceptor(cloudcore.HeaderInterceptor(map[string]string{"X-Project": "tenant-a"}))
	chain.AddRequestInterceptor(cloudcore.MetricsRequestInterceptor(collector))
	chain.AddResponseInterceptor(cloudcore.MetricsResponseInterceptor(collector))

	client := corehttp.NewClient(server.URL, nil, corehttp.WithInterceptors(chain))

	_, err := client.Get(context.Background(), "/volumes", nil)
	require.NoError(t, err)

	metrics := collector.GetMetrics("GET " + server.URL + "/volumes")
	require.NotNil(t, metrics)
	assert.Equal(t, int64(1), metrics.TotalRequests)
	assert.Equal(t, int64(0), metrics.TotalErrors)
}

func TestClient_InterceptorsSeeTheResend(t *testing.T) {
	t.Parallel()

	var sends atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		if sends.Add(1) == 1 {
			writer.WriteHeader(http.StatusUnauthorized)

			return
		}

		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var (
		mu      sync.Mutex
		seen    []int
		labels  []string
		metrics = cloudcore.NewMetricsCollector()
	)

	chain := cloudcore.NewInterceptorChain()
	chain.AddRequestInterceptor(func(_ context.Context, req *cloudcore.Request) error {
		mu.Lock()
		defer mu.Unlock()

		seen = append(seen, req.Attempt)
		labels = append(labels, req.Identity)

		return nil
	})
	chain.AddRequestInterceptor(cloudcore.MetricsRequestInterceptor(metrics))
	chain.AddResponseInterceptor(cloudcore.MetricsResponseInterceptor(metrics))

	tokenProvider := &MockTokenProvider{token: "stale-token", refreshed: "fresh-token"}
	client := corehttp.NewClient(server.URL, tokenProvider,
		corehttp.WithIdentity(testIdentity),
		corehttp.WithInterceptors(chain))

	_, err := client.Get(context.Background(), "/volumes/vol-1", url.Values{"detail": {"true"}})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, []string{testIdentity.String(), testIdentity.String()}, labels)
	assert.NotContains(t, labels[0], testIdentity.APIKey)

	m := metrics.GetMetrics("GET " + server.URL + "/volumes/vol-1")
	require.NotNil(t, m)
	assert.Equal(t, int64(2), m.TotalRequests)
	assert.Equal(t, int64(1), m.Unauthorized)
	assert.Equal(t, int64(1), m.Resent)
}
