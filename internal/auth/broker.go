// Package auth obtains and caches identity-service credentials.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/cache"
	"github.com/fivetwenty-io/cloudcore/internal/constants"
	corehttp "github.com/fivetwenty-io/cloudcore/internal/http"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
	"github.com/juju/clock"
)

// Static errors for err113 compliance.
var (
	ErrUsernameRequired = fmt.Errorf("%w: target username is required", cloudcore.ErrValidation)
	ErrTokenIDRequired  = fmt.Errorf("%w: token id is required", cloudcore.ErrValidation)
)

// Broker authenticates identities against the identity service and caches
// the resulting UserAccess per identity.
type Broker struct {
	endpoint         string
	http             *corehttp.Client
	cache            cloudcore.UserAccessCache
	store            cloudcore.Cache
	storeTTL         time.Duration
	persister        cloudcore.TokenPersister
	logger           cloudcore.Logger
	clock            clock.Clock
	expiryBuffer     time.Duration
	impersonationTTL time.Duration
	httpOptions      []corehttp.Option
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the logger.
func WithLogger(logger cloudcore.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithClock sets the time source used for expiry checks.
func WithClock(clk clock.Clock) Option {
	return func(b *Broker) {
		b.clock = clk
	}
}

// WithExpiryBuffer treats tokens as expired this long before they expire.
// A negative buffer disables it.
func WithExpiryBuffer(buffer time.Duration) Option {
	return func(b *Broker) {
		b.expiryBuffer = buffer
	}
}

// WithUserAccessCache injects the UserAccess cache, e.g. one shared by
// several brokers.
func WithUserAccessCache(userAccessCache cloudcore.UserAccessCache) Option {
	return func(b *Broker) {
		b.cache = userAccessCache
	}
}

// WithStore sets a second-level store consulted before authenticating.
func WithStore(store cloudcore.Cache, ttl time.Duration) Option {
	return func(b *Broker) {
		b.store = store
		b.storeTTL = ttl
	}
}

// WithTokenPersister sets a hook notified after each authentication.
func WithTokenPersister(persister cloudcore.TokenPersister) Option {
	return func(b *Broker) {
		b.persister = persister
	}
}

// WithImpersonationTTL sets the default impersonation token lifetime.
func WithImpersonationTTL(ttl time.Duration) Option {
	return func(b *Broker) {
		b.impersonationTTL = ttl
	}
}

// WithHTTPOptions configures the client used to reach the identity service.
func WithHTTPOptions(opts ...corehttp.Option) Option {
	return func(b *Broker) {
		b.httpOptions = append(b.httpOptions, opts...)
	}
}

// NewBroker creates a broker for the identity service at endpoint.
func NewBroker(endpoint string, opts ...Option) *Broker {
	if endpoint == "" {
		endpoint = constants.DefaultIdentityEndpoint
	}

	broker := &Broker{
		endpoint:         strings.TrimRight(endpoint, "/"),
		clock:            clock.WallClock,
		expiryBuffer:     constants.TokenExpirationBuffer,
		impersonationTTL: constants.DefaultImpersonationTTL,
	}

	for _, opt := range opts {
		opt(broker)
	}

	broker.logger = cloudcore.LoggerOrNop(broker.logger)

	if broker.cache == nil {
		broker.cache = NewUserAccessCache(broker.clock, broker.expiryBuffer)
	}

	httpOptions := append([]corehttp.Option{corehttp.WithLogger(broker.logger)}, broker.httpOptions...)
	broker.http = corehttp.NewClient(broker.endpoint, broker, httpOptions...)

	return broker
}

// NewUserAccessCache creates a UserAccess cache whose entries expire buffer
// before their token does, as seen by clk.
func NewUserAccessCache(clk clock.Clock, buffer time.Duration) *cache.ExpiringCache[string, *cloudcore.UserAccess] {
	return cache.New[string](userAccessExpired(clk, buffer), cache.WithNow(clk.Now))
}

func userAccessExpired(clk clock.Clock, buffer time.Duration) func(*cloudcore.UserAccess) bool {
	if buffer < 0 {
		buffer = 0
	}

	return func(access *cloudcore.UserAccess) bool {
		return access == nil || access.Token.ExpiresWithin(clk.Now(), buffer)
	}
}

// Endpoint returns the identity service base URL.
func (b *Broker) Endpoint() string {
	return b.endpoint
}

// GetUserAccess returns the cached UserAccess for identity, authenticating
// when there is none, it has expired, or forceRefresh is set.
func (b *Broker) GetUserAccess(ctx context.Context, identity cloudcore.Credential, forceRefresh bool) (*cloudcore.UserAccess, error) {
	err := identity.Validate()
	if err != nil {
		return nil, err
	}

	key := b.identityKey(identity)

	access, ok, err := b.cache.GetOrRefresh(ctx, key, func(ctx context.Context) (*cloudcore.UserAccess, bool, error) {
		return b.refresh(ctx, key, identity, forceRefresh)
	}, forceRefresh)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("authenticating %s: %w", identity, cloudcore.ErrNoToken)
	}

	return access, nil
}

// GetUserAccessAsync runs GetUserAccess in its own goroutine.
func (b *Broker) GetUserAccessAsync(ctx context.Context, identity cloudcore.Credential, forceRefresh bool) *cloudcore.Future[*cloudcore.UserAccess] {
	return cloudcore.Go(ctx, func(ctx context.Context) (*cloudcore.UserAccess, error) {
		return b.GetUserAccess(ctx, identity, forceRefresh)
	})
}

// Authenticate always re-authenticates identity and replaces its cache entry.
func (b *Broker) Authenticate(ctx context.Context, identity cloudcore.Credential) (*cloudcore.UserAccess, error) {
	return b.GetUserAccess(ctx, identity, true)
}

// GetToken implements corehttp.TokenProvider.
func (b *Broker) GetToken(ctx context.Context, identity cloudcore.Credential) (string, error) {
	access, err := b.GetUserAccess(ctx, identity, false)
	if err != nil {
		return "", err
	}

	return access.Token.ID, nil
}

// RefreshToken implements corehttp.TokenProvider.
func (b *Broker) RefreshToken(ctx context.Context, identity cloudcore.Credential) (string, error) {
	access, err := b.GetUserAccess(ctx, identity, true)
	if err != nil {
		return "", err
	}

	return access.Token.ID, nil
}

// Invalidate drops the cached UserAccess for identity.
func (b *Broker) Invalidate(ctx context.Context, identity cloudcore.Credential) {
	key := b.identityKey(identity)
	b.cache.Invalidate(key)
	b.deleteStored(ctx, key)
}

// refresh produces a UserAccess for the cache. A response without a token or
// catalog is a miss, not an error.
func (b *Broker) refresh(ctx context.Context, key string, identity cloudcore.Credential, forced bool) (*cloudcore.UserAccess, bool, error) {
	if forced {
		b.deleteStored(ctx, key)
	} else if access := b.loadStored(ctx, key); access != nil {
		return access, true, nil
	}

	access, err := b.authenticate(ctx, identity)
	if err != nil {
		return nil, false, err
	}

	if access == nil {
		b.logger.Warn("Identity service returned no token or catalog", map[string]interface{}{
			"identity": identity.String(),
		})

		return nil, false, nil
	}

	b.saveStored(ctx, key, access)
	b.persist(identity, access.Token)

	return access, true, nil
}

func (b *Broker) authenticate(ctx context.Context, identity cloudcore.Credential) (*cloudcore.UserAccess, error) {
	method := "password"
	if identity.Password == "" {
		method = "apikey"
	}

	b.logger.Info("Authenticating", map[string]interface{}{
		"identity": identity.String(),
		"method":   method,
		"endpoint": b.endpoint,
	})

	var response accessResponse

	_, err := b.http.DoJSON(ctx, &corehttp.Request{
		Method: http.MethodPost,
		Path:   constants.IdentityTokensPath,
		Body:   newAuthRequest(identity),
	}, &response)
	if err != nil {
		return nil, fmt.Errorf("authenticating %s: %w", identity, err)
	}

	access := response.toUserAccess()
	if access != nil {
		b.logger.Debug("Authenticated", map[string]interface{}{
			"identity": identity.String(),
			"expires":  access.Token.Expires,
			"services": len(access.ServiceCatalog),
		})
	}

	return access, nil
}

// ValidateToken looks up tokenID using admin's credentials and returns the
// token and the profile of the user it belongs to.
func (b *Broker) ValidateToken(ctx context.Context, admin cloudcore.Credential, tokenID string) (*cloudcore.UserAccess, error) {
	if tokenID == "" {
		return nil, ErrTokenIDRequired
	}

	var response accessResponse

	_, err := b.http.DoJSON(ctx, &corehttp.Request{
		Method:   http.MethodGet,
		Path:     constants.IdentityTokensPath + "/" + url.PathEscape(tokenID),
		Identity: &admin,
	}, &response)
	if err != nil {
		return nil, fmt.Errorf("validating token: %w", err)
	}

	if response.Access == nil || response.Access.Token == nil || response.Access.Token.ID == "" {
		return nil, fmt.Errorf("validating token: %w", cloudcore.ErrNoToken)
	}

	return &cloudcore.UserAccess{
		Token: response.Access.Token.toToken(),
		User:  response.Access.User.toUser(),
	}, nil
}

// ListEndpoints returns the endpoints visible to tokenID, grouped into a
// catalog by service type and name.
func (b *Broker) ListEndpoints(ctx context.Context, admin cloudcore.Credential, tokenID string) (cloudcore.ServiceCatalog, error) {
	if tokenID == "" {
		return nil, ErrTokenIDRequired
	}

	var response endpointsResponse

	_, err := b.http.DoJSON(ctx, &corehttp.Request{
		Method:   http.MethodGet,
		Path:     constants.IdentityTokensPath + "/" + url.PathEscape(tokenID) + "/endpoints",
		Identity: &admin,
	}, &response)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}

	return synthesizeCatalog(response.Endpoints), nil
}

func (b *Broker) identityKey(identity cloudcore.Credential) string {
	return strings.Join([]string{b.endpoint, strings.ToLower(identity.Account()), identity.Username}, "|")
}

func (b *Broker) impersonationKey(admin cloudcore.Credential, username string) string {
	return strings.Join([]string{b.endpoint, strings.ToLower(admin.Account()), admin.Username, "impersonate", username}, "|")
}

func (b *Broker) persist(identity cloudcore.Credential, token cloudcore.Token) {
	if b.persister == nil {
		return
	}

	err := b.persister.PersistToken(identity.String(), token)
	if err != nil {
		b.logger.Warn("Failed to persist token", map[string]interface{}{
			"identity": identity.String(),
			"error":    err.Error(),
		})
	}
}
