package cloudcore

import (
	"fmt"
	"strings"
	"time"
)

// Credential identifies a cloud account: a username plus exactly one secret.
type Credential struct {
	Username string `json:"username"              yaml:"username"`
	Password string `json:"-"                     yaml:"-"`
	APIKey   string `json:"-"                     yaml:"-"`

	// Optional account and region hints.
	TenantID   string `json:"tenant_id,omitempty"   yaml:"tenant_id,omitempty"`
	TenantName string `json:"tenant_name,omitempty" yaml:"tenant_name,omitempty"`
	Region     string `json:"region,omitempty"      yaml:"region,omitempty"`
}

// Validate checks that the credential can be sent to the identity service.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}

	switch {
	case c.Password == "" && c.APIKey == "":
		return fmt.Errorf("%w: a password or API key is required", ErrValidation)
	case c.Password != "" && c.APIKey != "":
		return fmt.Errorf("%w: only one of password or API key may be set", ErrValidation)
	}

	return nil
}

// Account returns the account component used for cache keys.
func (c Credential) Account() string {
	if c.TenantID != "" {
		return c.TenantID
	}

	if c.TenantName != "" {
		return c.TenantName
	}

	return c.Region
}

// String never includes the secret.
func (c Credential) String() string {
	return fmt.Sprintf("%s@%s", c.Username, c.Account())
}

// Tenant is the account a token is scoped to.
type Tenant struct {
	ID   string `json:"id"   yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Token is an opaque identifier with an expiration.
type Token struct {
	ID      string    `json:"id"               yaml:"id"`
	Expires time.Time `json:"expires"          yaml:"expires"`
	Tenant  *Tenant   `json:"tenant,omitempty" yaml:"tenant,omitempty"`
}

// IsExpired reports whether the token is unusable at now. A token without
// expiration information is always expired.
func (t *Token) IsExpired(now time.Time) bool {
	if t == nil || t.ID == "" || t.Expires.IsZero() {
		return true
	}

	return !now.Before(t.Expires)
}

// ExpiresWithin reports whether the token is expired at now+buffer.
func (t *Token) ExpiresWithin(now time.Time, buffer time.Duration) bool {
	return t.IsExpired(now.Add(buffer))
}

// Role is a role granted to a user.
type Role struct {
	ID          string `json:"id,omitempty"          yaml:"id,omitempty"`
	Name        string `json:"name"                  yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// User is the authenticated user's profile.
type User struct {
	ID            string `json:"id"                       yaml:"id"`
	Name          string `json:"name"                     yaml:"name"`
	DefaultRegion string `json:"default_region,omitempty" yaml:"default_region,omitempty"`
	Roles         []Role `json:"roles,omitempty"          yaml:"roles,omitempty"`
}

// Endpoint is a region-scoped, or region-independent when Region is empty,
// public/internal URL pair.
type Endpoint struct {
	Region      string `json:"region,omitempty"       yaml:"region,omitempty"`
	TenantID    string `json:"tenant_id,omitempty"    yaml:"tenant_id,omitempty"`
	PublicURL   string `json:"public_url,omitempty"   yaml:"public_url,omitempty"`
	InternalURL string `json:"internal_url,omitempty" yaml:"internal_url,omitempty"`
}

// RegionIndependent reports whether the endpoint is not tied to a region.
func (e Endpoint) RegionIndependent() bool {
	return strings.TrimSpace(e.Region) == ""
}

// URL returns the internal URL when requested and present, else the public URL.
func (e Endpoint) URL(internal bool) string {
	if internal && e.InternalURL != "" {
		return e.InternalURL
	}

	return e.PublicURL
}

// ServiceEntry is one service in a catalog.
type ServiceEntry struct {
	Type      string     `json:"type"      yaml:"type"`
	Name      string     `json:"name"      yaml:"name"`
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
}

// ServiceCatalog is the ordered set of services an account may use.
type ServiceCatalog []ServiceEntry

// Find returns the entries whose type case-insensitively equals serviceType.
func (c ServiceCatalog) Find(serviceType string) []ServiceEntry {
	var entries []ServiceEntry

	for _, entry := range c {
		if strings.EqualFold(entry.Type, serviceType) {
			entries = append(entries, entry)
		}
	}

	return entries
}

// Regions returns the distinct non-empty regions offered for serviceType, in
// catalog order.
func (c ServiceCatalog) Regions(serviceType string) []string {
	seen := make(map[string]struct{})

	var regions []string

	for _, entry := range c.Find(serviceType) {
		for _, endpoint := range entry.Endpoints {
			if endpoint.RegionIndependent() {
				continue
			}

			key := strings.ToUpper(endpoint.Region)
			if _, ok := seen[key]; ok {
				continue
			}

			seen[key] = struct{}{}
			regions = append(regions, endpoint.Region)
		}
	}

	return regions
}

// UserAccess bundles a token, the user's profile and service catalog. A
// UserAccess is never mutated after creation; a refresh replaces it.
type UserAccess struct {
	Token          Token          `json:"token"           yaml:"token"`
	User           User           `json:"user"            yaml:"user"`
	ServiceCatalog ServiceCatalog `json:"service_catalog" yaml:"service_catalog"`
}

// IsExpired reports whether the access token is unusable at now.
func (u *UserAccess) IsExpired(now time.Time) bool {
	if u == nil {
		return true
	}

	return u.Token.IsExpired(now)
}
