package cloudcore

import (
	"context"
	"time"

	"github.com/juju/clock"
)

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]interface{}) {}
func (NopLogger) Info(string, map[string]interface{})  {}
func (NopLogger) Warn(string, map[string]interface{})  {}
func (NopLogger) Error(string, map[string]interface{}) {}

// LoggerOrNop returns logger, or a NopLogger when logger is nil.
func LoggerOrNop(logger Logger) Logger {
	if logger == nil {
		return NopLogger{}
	}

	return logger
}

// TokenPersister is notified after every successful authentication.
type TokenPersister interface {
	PersistToken(identity string, token Token) error
}

// UserAccessCache is the cache shape the credential broker needs. It is
// satisfied by the expiring cache in internal/cache; the interface lives here
// so a shared instance can be injected through Config.
type UserAccessCache interface {
	GetOrRefresh(
		ctx context.Context,
		key string,
		refresh func(ctx context.Context) (*UserAccess, bool, error),
		forceRefresh bool,
	) (*UserAccess, bool, error)
	Invalidate(key string)
}

// IdentityClient provides credentials and catalogs.
type IdentityClient interface {
	GetUserAccess(ctx context.Context, identity Credential, forceRefresh bool) (*UserAccess, error)
	Authenticate(ctx context.Context, identity Credential) (*UserAccess, error)
	Impersonate(ctx context.Context, admin Credential, username string, ttl time.Duration) (*UserAccess, error)
}

// EndpointClient resolves service base URLs.
type EndpointClient interface {
	ResolveEndpoint(ctx context.Context, identity Credential, serviceType, serviceName, region string) (*Endpoint, error)
}

// Config represents client configuration for building a cloudclient.Provider.
//
// Every field is optional except Credential for calls that need one. Zero
// values select the documented default.
type Config struct {
	// IdentityEndpoint: base URL of the identity service. Defaults to
	// constants.DefaultIdentityEndpoint. "/v2.0/..." paths are appended.
	IdentityEndpoint string

	// Credential: default identity used by provider methods that do not take
	// one explicitly.
	Credential *Credential
	// AuthenticateOnInit: authenticate Credential while building the provider
	// so bad credentials fail fast.
	AuthenticateOnInit bool

	// DefaultRegion: region used when a call names none. Falls back to the
	// user's own default region from their profile.
	DefaultRegion string

	// HTTPTimeout: per-attempt HTTP timeout. Defaults to constants.DefaultHTTPTimeout.
	HTTPTimeout time.Duration
	// RetryMax: transient (5xx, 429, connection) retries at the transport. 0 disables.
	RetryMax int
	// RetryWaitMin: minimum backoff between transient retries.
	RetryWaitMin time.Duration
	// RetryWaitMax: maximum backoff between transient retries.
	RetryWaitMax time.Duration
	// UserAgent: overrides the default User-Agent header.
	UserAgent string
	// Debug: enables request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger.
	Logger Logger

	// Clock: time source for token expiry and polling. Defaults to the wall clock.
	Clock clock.Clock
	// ExpiryBuffer: a cached token is refreshed this long before it expires.
	// Defaults to constants.TokenExpirationBuffer; negative disables the buffer.
	ExpiryBuffer time.Duration
	// UserAccessCache: cache of UserAccess by identity. Defaults to the
	// process-wide instance returned by cloudclient.SharedUserAccessCache.
	UserAccessCache UserAccessCache
	// Store: optional second-level byte store shared across processes.
	Store *CacheConfig
	// TokenPersister: optional hook notified after authentication.
	TokenPersister TokenPersister
	// ImpersonationTTL: default lifetime requested for impersonation tokens.
	ImpersonationTTL time.Duration

	// PollInterval and PollTimeout are the defaults for waits.
	PollInterval time.Duration
	PollTimeout  time.Duration

	// Interceptors: optional request/response interceptors for every call.
	Interceptors *InterceptorChain
}
