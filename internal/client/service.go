package client

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/cloudcore/internal/http"
	"github.com/fivetwenty-io/cloudcore/internal/wait"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
)

// Static errors for err113 compliance.
var (
	ErrResourceIDRequired = fmt.Errorf("%w: resource id is required", cloudcore.ErrValidation)
)

// ServiceClient sends requests to one catalog service on behalf of one
// identity. The base URL is resolved per call, so a refreshed catalog is
// picked up without rebuilding the client.
type ServiceClient struct {
	httpClient  *http.Client
	endpoints   cloudcore.EndpointClient
	identity    cloudcore.Credential
	serviceType string
	serviceName string
	region      string
	waiter      *wait.Waiter
}

// ServiceOption configures a ServiceClient.
type ServiceOption func(*ServiceClient)

// WithServiceName narrows endpoint resolution to a catalog entry name.
func WithServiceName(name string) ServiceOption {
	return func(c *ServiceClient) {
		c.serviceName = name
	}
}

// WithRegion pins the region used for endpoint resolution.
func WithRegion(region string) ServiceOption {
	return func(c *ServiceClient) {
		c.region = region
	}
}

// WithWaiter sets the waiter used by the WaitFor methods.
func WithWaiter(waiter *wait.Waiter) ServiceOption {
	return func(c *ServiceClient) {
		c.waiter = waiter
	}
}

// NewServiceClient creates a ServiceClient for serviceType.
func NewServiceClient(
	httpClient *http.Client,
	endpoints cloudcore.EndpointClient,
	identity cloudcore.Credential,
	serviceType string,
	opts ...ServiceOption,
) *ServiceClient {
	service := &ServiceClient{
		httpClient:  httpClient,
		endpoints:   endpoints,
		identity:    identity,
		serviceType: serviceType,
	}

	for _, opt := range opts {
		opt(service)
	}

	if service.waiter == nil {
		service.waiter = wait.New()
	}

	return service
}

// BaseURL resolves the service's public URL.
func (c *ServiceClient) BaseURL(ctx context.Context) (string, error) {
	selected, err := c.endpoints.ResolveEndpoint(ctx, c.identity, c.serviceType, c.serviceName, c.region)
	if err != nil {
		return "", fmt.Errorf("resolving %s endpoint: %w", c.serviceType, err)
	}

	return selected.PublicURL, nil
}

// Do sends req to the resolved endpoint with the client's identity and
// decodes the response into out when out is non-nil.
func (c *ServiceClient) Do(ctx context.Context, req *http.Request, out interface{}) (*http.Response, error) {
	baseURL, err := c.BaseURL(ctx)
	if err != nil {
		return nil, err
	}

	sent := *req
	sent.BaseURL = baseURL

	if sent.Identity == nil {
		identity := c.identity
		sent.Identity = &identity
	}

	return c.httpClient.DoJSON(ctx, &sent, out)
}
