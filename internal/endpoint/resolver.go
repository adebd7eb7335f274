// Package endpoint selects service endpoints from a service catalog.
package endpoint

import (
	"fmt"
	"strings"

	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
)

// Static errors for err113 compliance.
var (
	ErrServiceTypeRequired = fmt.Errorf("%w: service type is required", cloudcore.ErrValidation)
	ErrUserAccessRequired  = fmt.Errorf("%w: user access is required", cloudcore.ErrValidation)
)

// Resolver picks the endpoint for a service type, optional name and region.
type Resolver struct {
	defaultRegion string
	logger        cloudcore.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDefaultRegion sets the region used when a call names none.
func WithDefaultRegion(region string) Option {
	return func(r *Resolver) {
		r.defaultRegion = region
	}
}

// WithLogger sets the logger.
func WithLogger(logger cloudcore.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	resolver := &Resolver{}

	for _, opt := range opts {
		opt(resolver)
	}

	resolver.logger = cloudcore.LoggerOrNop(resolver.logger)

	return resolver
}

// DefaultRegion returns the configured default region.
func (r *Resolver) DefaultRegion() string {
	return r.defaultRegion
}

// Resolve selects an endpoint from access's catalog.
//
// Catalog entries are narrowed by type (required), then by name when the
// name matches anything. The region is the explicit argument, else the
// resolver default, else the user's default region. An endpoint in that
// region wins; otherwise a region-independent endpoint is used.
//
// When several endpoints qualify the first in catalog order is returned.
// Catalog order is whatever the identity service sent, so callers that need
// a specific endpoint among equals must narrow by name or region.
func (r *Resolver) Resolve(access *cloudcore.UserAccess, serviceType, serviceName, region string) (*cloudcore.Endpoint, error) {
	if access == nil {
		return nil, ErrUserAccessRequired
	}

	if strings.TrimSpace(serviceType) == "" {
		return nil, ErrServiceTypeRequired
	}

	entries := access.ServiceCatalog.Find(serviceType)
	if len(entries) == 0 {
		return nil, cloudcore.NewEndpointError(serviceType, serviceName, region, cloudcore.ErrUserAuthorization)
	}

	if serviceName != "" {
		if named := filterByName(entries, serviceName); len(named) > 0 {
			entries = named
		}
	}

	effectiveRegion := r.effectiveRegion(access, region)

	var regional, independent []cloudcore.Endpoint

	for _, entry := range entries {
		for _, candidate := range entry.Endpoints {
			switch {
			case candidate.RegionIndependent():
				independent = append(independent, candidate)
			case effectiveRegion != "" && strings.EqualFold(candidate.Region, effectiveRegion):
				regional = append(regional, candidate)
			}
		}
	}

	if selected := r.first(regional, serviceType, effectiveRegion); selected != nil {
		return selected, nil
	}

	if selected := r.first(independent, serviceType, ""); selected != nil {
		return selected, nil
	}

	return nil, cloudcore.NewEndpointError(serviceType, serviceName, effectiveRegion, cloudcore.ErrNoDefaultRegion)
}

// ResolveURL resolves an endpoint and returns its internal URL when
// requested and present, else its public URL.
func (r *Resolver) ResolveURL(access *cloudcore.UserAccess, serviceType, serviceName, region string, internal bool) (string, error) {
	selected, err := r.Resolve(access, serviceType, serviceName, region)
	if err != nil {
		return "", err
	}

	return selected.URL(internal), nil
}

func (r *Resolver) effectiveRegion(access *cloudcore.UserAccess, region string) string {
	for _, candidate := range []string{region, r.defaultRegion, access.User.DefaultRegion} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}

	return ""
}

func (r *Resolver) first(candidates []cloudcore.Endpoint, serviceType, region string) *cloudcore.Endpoint {
	if len(candidates) == 0 {
		return nil
	}

	if len(candidates) > 1 {
		r.logger.Debug("Multiple endpoints match, using the first", map[string]interface{}{
			"service_type": serviceType,
			"region":       region,
			"candidates":   len(candidates),
		})
	}

	selected := candidates[0]

	return &selected
}

func filterByName(entries []cloudcore.ServiceEntry, serviceName string) []cloudcore.ServiceEntry {
	var named []cloudcore.ServiceEntry

	for _, entry := range entries {
		if strings.EqualFold(entry.Name, serviceName) {
			named = append(named, entry)
		}
	}

	return named
}
