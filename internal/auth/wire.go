package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
)

// Request bodies.

type authRequest struct {
	Auth authBody `json:"auth"`
}

type authBody struct {
	PasswordCredentials *passwordCredentials `json:"passwordCredentials,omitempty"`
	APIKeyCredentials   *apiKeyCredentials   `json:"RAX-KSKEY:apiKeyCredentials,omitempty"`
	TenantID            string               `json:"tenantId,omitempty"`
	TenantName          string               `json:"tenantName,omitempty"`
}

type passwordCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type apiKeyCredentials struct {
	Username string `json:"username"`
	APIKey   string `json:"apiKey"`
}

// newAuthRequest builds the password shape when a password is present,
// otherwise the API key shape.
func newAuthRequest(identity cloudcore.Credential) *authRequest {
	body := authBody{
		TenantID:   identity.TenantID,
		TenantName: identity.TenantName,
	}

	if identity.Password != "" {
		body.PasswordCredentials = &passwordCredentials{
			Username: identity.Username,
			Password: identity.Password,
		}
	} else {
		body.APIKeyCredentials = &apiKeyCredentials{
			Username: identity.Username,
			APIKey:   identity.APIKey,
		}
	}

	return &authRequest{Auth: body}
}

type impersonationRequest struct {
	Impersonation impersonationBody `json:"RAX-AUTH:impersonation"`
}

type impersonationBody struct {
	User            impersonatedUser `json:"user"`
	ExpireInSeconds int              `json:"expire-in-seconds"`
}

type impersonatedUser struct {
	Username string `json:"username"`
}

func newImpersonationRequest(username string, ttl time.Duration) *impersonationRequest {
	return &impersonationRequest{
		Impersonation: impersonationBody{
			User:            impersonatedUser{Username: username},
			ExpireInSeconds: int(ttl / time.Second),
		},
	}
}

// Response bodies.

type accessResponse struct {
	Access *accessBody `json:"access"`
}

type accessBody struct {
	Token          *tokenBody            `json:"token"`
	ServiceCatalog flexList[serviceBody] `json:"serviceCatalog"`
	User           *userBody             `json:"user"`
}

type tokenBody struct {
	ID      string      `json:"id"`
	Expires flexTime    `json:"expires"`
	Tenant  *tenantBody `json:"tenant"`
}

type tenantBody struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type serviceBody struct {
	Name      string                 `json:"name"`
	Type      string                 `json:"type"`
	Endpoints flexList[endpointBody] `json:"endpoints"`
}

type endpointBody struct {
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Region      string `json:"region"`
	TenantID    string `json:"tenantId"`
	PublicURL   string `json:"publicURL"`
	InternalURL string `json:"internalURL"`
}

type userBody struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	DefaultRegion string             `json:"RAX-AUTH:defaultRegion"`
	Roles         flexList[roleBody] `json:"roles"`
}

type roleBody struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type endpointsResponse struct {
	Endpoints flexList[endpointBody] `json:"endpoints"`
}

// flexList decodes a JSON array, a single object, or null. Some identity
// responses collapse one-element arrays into a bare object; the array shape
// is tried first and the object shape second.
type flexList[T any] []T

// UnmarshalJSON implements json.Unmarshaler.
func (l *flexList[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil

		return nil
	}

	var many []T

	arrayErr := json.Unmarshal(trimmed, &many)
	if arrayErr == nil {
		*l = many

		return nil
	}

	var one T

	err := json.Unmarshal(trimmed, &one)
	if err != nil {
		return fmt.Errorf("decoding list as array (%w) or single object: %w", arrayErr, err)
	}

	*l = []T{one}

	return nil
}

// flexTime accepts the timestamp layouts the identity service is known to
// emit. An empty or unparseable value decodes to the zero time, which makes
// the token count as expired.
type flexTime time.Time

var expiresLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *flexTime) UnmarshalJSON(data []byte) error {
	var raw string

	err := json.Unmarshal(data, &raw)
	if err != nil {
		*t = flexTime{}

		return nil //nolint:nilerr // non-string expiry means no usable expiry
	}

	*t = flexTime(parseExpires(raw))

	return nil
}

func parseExpires(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	for _, layout := range expiresLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return parsed.UTC()
		}
	}

	return time.Time{}
}

func (t *tokenBody) toToken() cloudcore.Token {
	token := cloudcore.Token{
		ID:      t.ID,
		Expires: time.Time(t.Expires),
	}

	if t.Tenant != nil {
		token.Tenant = &cloudcore.Tenant{ID: t.Tenant.ID, Name: t.Tenant.Name}
	}

	return token
}

func (u *userBody) toUser() cloudcore.User {
	if u == nil {
		return cloudcore.User{}
	}

	user := cloudcore.User{
		ID:            u.ID,
		Name:          u.Name,
		DefaultRegion: u.DefaultRegion,
	}

	for _, role := range u.Roles {
		user.Roles = append(user.Roles, cloudcore.Role{
			ID:          role.ID,
			Name:        role.Name,
			Description: role.Description,
		})
	}

	return user
}

func (e endpointBody) toEndpoint() cloudcore.Endpoint {
	return cloudcore.Endpoint{
		Region:      e.Region,
		TenantID:    e.TenantID,
		PublicURL:   e.PublicURL,
		InternalURL: e.InternalURL,
	}
}

// toUserAccess converts an authentication response. It returns nil when the
// response lacks a token or a service catalog.
func (r *accessResponse) toUserAccess() *cloudcore.UserAccess {
	if r == nil || r.Access == nil || r.Access.Token == nil || r.Access.Token.ID == "" {
		return nil
	}

	if r.Access.ServiceCatalog == nil {
		return nil
	}

	catalog := make(cloudcore.ServiceCatalog, 0, len(r.Access.ServiceCatalog))

	for _, service := range r.Access.ServiceCatalog {
		entry := cloudcore.ServiceEntry{
			Type: service.Type,
			Name: service.Name,
		}

		for _, endpoint := range service.Endpoints {
			entry.Endpoints = append(entry.Endpoints, endpoint.toEndpoint())
		}

		catalog = append(catalog, entry)
	}

	return &cloudcore.UserAccess{
		Token:          r.Access.Token.toToken(),
		User:           r.Access.User.toUser(),
		ServiceCatalog: catalog,
	}
}

// synthesizeCatalog groups a flat endpoint list into catalog entries by type
// and name, in first-seen order.
func synthesizeCatalog(endpoints []endpointBody) cloudcore.ServiceCatalog {
	catalog := cloudcore.ServiceCatalog{}
	index := make(map[string]int)

	for _, endpoint := range endpoints {
		key := strings.ToLower(endpoint.Type) + "\x00" + strings.ToLower(endpoint.Name)

		position, ok := index[key]
		if !ok {
			position = len(catalog)
			index[key] = position
			catalog = append(catalog, cloudcore.ServiceEntry{
				Type: endpoint.Type,
				Name: endpoint.Name,
			})
		}

		catalog[position].Endpoints = append(catalog[position].Endpoints, endpoint.toEndpoint())
	}

	return catalog
}
