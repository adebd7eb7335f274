package cloudclient

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/auth"
	"github.com/fivetwenty-io/cloudcore/internal/client"
	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/fivetwenty-io/cloudcore/internal/endpoint"
	corehttp "github.com/fivetwenty-io/cloudcore/internal/http"
	"github.com/fivetwenty-io/cloudcore/internal/wait"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
	"github.com/juju/clock"
)

// Request and Response are the executor's request and response shapes.
type (
	Request  = corehttp.Request
	Response = corehttp.Response
)

// Service-specific clients and the waiter they use.
type (
	ServiceClient = client.ServiceClient
	VolumesClient = client.VolumesClient
	ServersClient = client.ServersClient
	Volume        = client.Volume
	Server        = client.Server
	Waiter        = wait.Waiter
)

// Service selects the catalog endpoint a request is sent to.
type Service struct {
	Type   string
	Name   string
	Region string
	// Internal selects the endpoint's internal URL when it has one.
	Internal bool
}

var (
	sharedCache     cloudcore.UserAccessCache
	sharedCacheOnce sync.Once
)

// SharedUserAccessCache returns the process-wide UserAccess cache used by
// every provider built without its own cache, clock or expiry buffer.
func SharedUserAccessCache() cloudcore.UserAccessCache {
	sharedCacheOnce.Do(func() {
		sharedCache = auth.NewUserAccessCache(clock.WallClock, constants.TokenExpirationBuffer)
	})

	return sharedCache
}

// Provider is the assembled client: credential broker, endpoint resolver,
// request executor and waiter sharing one configuration.
type Provider struct {
	config   cloudcore.Config
	broker   *auth.Broker
	resolver *endpoint.Resolver
	http     *corehttp.Client
	waiter   *wait.Waiter
	store    cloudcore.Cache
	logger   cloudcore.Logger
}

var (
	_ cloudcore.IdentityClient = (*Provider)(nil)
	_ cloudcore.EndpointClient = (*Provider)(nil)
)

// New builds a Provider from config. With AuthenticateOnInit set, the default
// credential is authenticated before New returns.
func New(ctx context.Context, config *cloudcore.Config) (*Provider, error) {
	if config == nil {
		return nil, cloudcore.ErrConfigRequired
	}

	provider := &Provider{
		config: *config,
		logger: cloudcore.LoggerOrNop(config.Logger),
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	httpOptions := provider.httpOptions()

	brokerOptions := []auth.Option{
		auth.WithLogger(provider.logger),
		auth.WithClock(clk),
		auth.WithHTTPOptions(httpOptions...),
	}

	switch {
	case config.UserAccessCache != nil:
		brokerOptions = append(brokerOptions, auth.WithUserAccessCache(config.UserAccessCache))
	case config.Clock == nil && config.ExpiryBuffer == 0:
		brokerOptions = append(brokerOptions, auth.WithUserAccessCache(SharedUserAccessCache()))
	}

	if config.ExpiryBuffer != 0 {
		brokerOptions = append(brokerOptions, auth.WithExpiryBuffer(config.ExpiryBuffer))
	}

	if config.ImpersonationTTL > 0 {
		brokerOptions = append(brokerOptions, auth.WithImpersonationTTL(config.ImpersonationTTL))
	}

	if config.TokenPersister != nil {
		brokerOptions = append(brokerOptions, auth.WithTokenPersister(config.TokenPersister))
	}

	if config.Store != nil {
		store, err := cloudcore.NewCacheFromConfig(config.Store)
		if err != nil {
			return nil, fmt.Errorf("creating user access store: %w", err)
		}

		provider.store = store
		brokerOptions = append(brokerOptions, auth.WithStore(store, config.Store.EffectiveOptions().TTL))
	}

	provider.broker = auth.NewBroker(config.IdentityEndpoint, brokerOptions...)
	provider.resolver = endpoint.NewResolver(
		endpoint.WithDefaultRegion(config.DefaultRegion),
		endpoint.WithLogger(provider.logger),
	)
	provider.http = corehttp.NewClient("", provider.broker, httpOptions...)

	waiterOptions := []wait.Option{wait.WithClock(clk), wait.WithLogger(provider.logger)}
	if config.PollInterval > 0 {
		waiterOptions = append(waiterOptions, wait.WithInterval(config.PollInterval))
	}

	if config.PollTimeout > 0 {
		waiterOptions = append(waiterOptions, wait.WithTimeout(config.PollTimeout))
	}

	provider.waiter = wait.New(waiterOptions...)

	if config.AuthenticateOnInit {
		identity, err := provider.DefaultCredential()
		if err != nil {
			return nil, err
		}

		_, err = provider.GetUserAccess(ctx, identity, false)
		if err != nil {
			_ = provider.Close()

			return nil, fmt.Errorf("authenticating %s: %w", identity, err)
		}
	}

	return provider, nil
}

func (p *Provider) httpOptions() []corehttp.Option {
	config := p.config

	minWait := config.RetryWaitMin
	if minWait <= 0 {
		minWait = constants.DefaultRetryWaitMin
	}

	maxWait := config.RetryWaitMax
	if maxWait <= 0 {
		maxWait = constants.DefaultRetryWaitMax
	}

	opts := []corehttp.Option{
		corehttp.WithLogger(p.logger),
		corehttp.WithDebug(config.Debug),
		corehttp.WithRetryConfig(config.RetryMax, minWait, maxWait),
	}

	if config.HTTPTimeout > 0 {
		opts = append(opts, corehttp.WithHTTPTimeout(config.HTTPTimeout))
	}

	if config.UserAgent != "" {
		opts = append(opts, corehttp.WithUserAgent(config.UserAgent))
	}

	if config.Interceptors != nil {
		opts = append(opts, corehttp.WithInterceptors(config.Interceptors))
	}

	return opts
}

// Close releases the second-level store's connection, if any.
func (p *Provider) Close() error {
	closer, ok := p.store.(io.Closer)
	if !ok {
		return nil
	}

	err := closer.Close()
	if err != nil {
		return fmt.Errorf("closing user access store: %w", err)
	}

	return nil
}

// IdentityEndpoint returns the identity service base URL.
func (p *Provider) IdentityEndpoint() string {
	return p.broker.Endpoint()
}

// DefaultRegion returns the configured default region.
func (p *Provider) DefaultRegion() string {
	return p.resolver.DefaultRegion()
}

// DefaultCredential returns the configured credential.
func (p *Provider) DefaultCredential() (cloudcore.Credential, error) {
	if p.config.Credential == nil {
		return cloudcore.Credential{}, cloudcore.ErrNotAuthenticated
	}

	return *p.config.Credential, nil
}

// Waiter returns the provider's waiter for use with the wait helpers.
func (p *Provider) Waiter() *Waiter {
	return p.waiter
}

// GetUserAccess returns a usable UserAccess for identity, authenticating
// only when the cached one is missing, expired or forceRefresh is set.
func (p *Provider) GetUserAccess(ctx context.Context, identity cloudcore.Credential, forceRefresh bool) (*cloudcore.UserAccess, error) {
	return p.broker.GetUserAccess(ctx, identity, forceRefresh)
}

// GetUserAccessAsync runs GetUserAccess in its own goroutine.
func (p *Provider) GetUserAccessAsync(ctx context.Context, identity cloudcore.Credential, forceRefresh bool) *cloudcore.Future[*cloudcore.UserAccess] {
	return p.broker.GetUserAccessAsync(ctx, identity, forceRefresh)
}

// Authenticate always authenticates identity and replaces the cached value.
func (p *Provider) Authenticate(ctx context.Context, identity cloudcore.Credential) (*cloudcore.UserAccess, error) {
	return p.broker.Authenticate(ctx, identity)
}

// Impersonate returns a UserAccess for username obtained with admin's
// privileges. A ttl of zero requests the configured default lifetime.
func (p *Provider) Impersonate(ctx context.Context, admin cloudcore.Credential, username string, ttl time.Duration) (*cloudcore.UserAccess, error) {
	return p.broker.Impersonate(ctx, admin, username, ttl)
}

// ValidateToken looks up tokenID with admin's privileges.
func (p *Provider) ValidateToken(ctx context.Context, admin cloudcore.Credential, tokenID string) (*cloudcore.UserAccess, error) {
	return p.broker.ValidateToken(ctx, admin, tokenID)
}

// ListEndpoints returns the catalog tokenID may use, looked up with admin's
// privileges.
func (p *Provider) ListEndpoints(ctx context.Context, admin cloudcore.Credential, tokenID string) (cloudcore.ServiceCatalog, error) {
	return p.broker.ListEndpoints(ctx, admin, tokenID)
}

// Invalidate drops every cached UserAccess for identity.
func (p *Provider) Invalidate(ctx context.Context, identity cloudcore.Credential) {
	p.broker.Invalidate(ctx, identity)
}

// ResolveEndpoint selects an endpoint from identity's catalog.
func (p *Provider) ResolveEndpoint(ctx context.Context, identity cloudcore.Credential, serviceType, serviceName, region string) (*cloudcore.Endpoint, error) {
	access, err := p.GetUserAccess(ctx, identity, false)
	if err != nil {
		return nil, err
	}

	return p.resolver.Resolve(access, serviceType, serviceName, p.region(identity, region))
}

// ResolveURL resolves the URL requests for service should be sent to.
func (p *Provider) ResolveURL(ctx context.Context, identity cloudcore.Credential, service Service) (string, error) {
	selected, err := p.ResolveEndpoint(ctx, identity, service.Type, service.Name, service.Region)
	if err != nil {
		return "", err
	}

	return selected.URL(service.Internal), nil
}

// Do sends req to service's endpoint on behalf of identity.
func (p *Provider) Do(ctx context.Context, identity cloudcore.Credential, service Service, req *Request) (*Response, error) {
	return p.DoJSON(ctx, identity, service, req, nil)
}

// DoJSON sends req like Do and decodes the response body into out.
func (p *Provider) DoJSON(ctx context.Context, identity cloudcore.Credential, service Service, req *Request, out interface{}) (*Response, error) {
	baseURL, err := p.ResolveURL(ctx, identity, service)
	if err != nil {
		return nil, err
	}

	sent := *req
	sent.BaseURL = baseURL
	sent.Identity = &identity

	return p.http.DoJSON(ctx, &sent, out)
}

// Service returns a client bound to identity and a catalog service.
func (p *Provider) Service(identity cloudcore.Credential, serviceType, region string) *ServiceClient {
	return client.NewServiceClient(p.http, p, identity, serviceType,
		client.WithRegion(region),
		client.WithWaiter(p.waiter))
}

// Volumes returns a block storage client for identity.
func (p *Provider) Volumes(identity cloudcore.Credential, region string) *VolumesClient {
	return client.NewVolumesClient(p.Service(identity, constants.ServiceTypeBlockStorage, region))
}

// Servers returns a compute client for identity.
func (p *Provider) Servers(identity cloudcore.Credential, region string) *ServersClient {
	return client.NewServersClient(p.Service(identity, constants.ServiceTypeCompute, region))
}

// region lets a credential's own region hint stand in for an unspecified one.
func (p *Provider) region(identity cloudcore.Credential, region string) string {
	if region != "" {
		return region
	}

	return identity.Region
}
