package constants

import "time"

// Profile storage permissions.
const (
	ConfigDirPerm  = 0750
	ConfigFilePerm = 0600
)

// Identity service.
const (
	// DefaultIdentityEndpoint is the public identity service.
	DefaultIdentityEndpoint = "https://identity.api.rackspacecloud.com"

	// IdentityTokensPath serves authentication and token validation.
	IdentityTokensPath = "/v2.0/tokens"

	// IdentityImpersonationPath issues impersonation tokens.
	IdentityImpersonationPath = "/v2.0/RAX-AUTH/impersonation-tokens"

	// AuthTokenHeader carries the token on authenticated requests.
	AuthTokenHeader = "X-Auth-Token"

	DefaultUserAgent = "cloudcore-go/1.0.0"

	// DefaultImpersonationTTL is the lifetime requested for impersonation tokens.
	DefaultImpersonationTTL = 3 * time.Hour

	// TokenExpirationBuffer treats a token as expired this long before the
	// identity service would.
	TokenExpirationBuffer = 30 * time.Second
)

// Request executor.
const (
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultRetryMax bounds retries of transport failures and 5xx responses.
	// It does not count the single resend after a rejected token.
	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 1 * time.Second
	DefaultRetryWaitMax = 10 * time.Second

	// MaxErrorBodySize bounds the response body excerpt kept on errors.
	MaxErrorBodySize = 512
)

// Waiter.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 10 * time.Minute

	// DefaultConcurrencyLimit bounds the waits wait.All runs at once.
	DefaultConcurrencyLimit = 10
)

// Second-level store.
const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 24 * time.Hour
)

// Resource statuses the typed clients wait on.
const (
	VolumeStatusAvailable = "available"
	VolumeStatusError     = "error"

	ServerStatusActive = "ACTIVE"
	ServerStatusError  = "ERROR"
)

// Catalog service types.
const (
	ServiceTypeBlockStorage = "volume"
	ServiceTypeCompute      = "compute"
)

// CLI display.
const (
	// CheckMarkSymbol marks the current profile.
	CheckMarkSymbol = "✓"

	NotAvailable = "N/A"
	MaskedSecret = "***"

	// TokenDisplayLength is how much of a token id is shown unmasked.
	TokenDisplayLength = 8

	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"

	JSONIndentSize = 2

	// KeyValueSplitParts splits "Name=value" header flags.
	KeyValueSplitParts = 2
)
