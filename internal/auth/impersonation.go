package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	corehttp "github.com/fivetwenty-io/cloudcore/internal/http"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
)

// Impersonate returns a UserAccess acting as username, obtained with admin's
// credentials. It takes three round trips: issue an impersonation token,
// validate it to read the user's profile, and list its endpoints to build a
// catalog. The result is cached under admin and username. A ttl of zero
// selects the broker default.
func (b *Broker) Impersonate(ctx context.Context, admin cloudcore.Credential, username string, ttl time.Duration) (*cloudcore.UserAccess, error) {
	err := admin.Validate()
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(username) == "" {
		return nil, ErrUsernameRequired
	}

	if ttl <= 0 {
		ttl = b.impersonationTTL
	}

	key := b.impersonationKey(admin, username)

	access, ok, err := b.cache.GetOrRefresh(ctx, key, func(ctx context.Context) (*cloudcore.UserAccess, bool, error) {
		access, err := b.impersonate(ctx, admin, username, ttl)

		return access, access != nil, err
	}, false)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("impersonating %s: %w", username, cloudcore.ErrNoToken)
	}

	return access, nil
}

func (b *Broker) impersonate(ctx context.Context, admin cloudcore.Credential, username string, ttl time.Duration) (*cloudcore.UserAccess, error) {
	b.logger.Info("Impersonating user", map[string]interface{}{
		"admin":  admin.String(),
		"target": username,
		"ttl":    ttl.String(),
	})

	var issued accessResponse

	_, err := b.http.DoJSON(ctx, &corehttp.Request{
		Method:   http.MethodPost,
		Path:     constants.IdentityImpersonationPath,
		Body:     newImpersonationRequest(username, ttl),
		Identity: &admin,
	}, &issued)
	if err != nil {
		return nil, fmt.Errorf("impersonating %s: %w", username, err)
	}

	if issued.Access == nil || issued.Access.Token == nil || issued.Access.Token.ID == "" {
		return nil, nil //nolint:nilnil // a response without a token is a miss
	}

	token := issued.Access.Token.toToken()

	validated, err := b.ValidateToken(ctx, admin, token.ID)
	if err != nil {
		return nil, fmt.Errorf("impersonating %s: %w", username, err)
	}

	catalog, err := b.ListEndpoints(ctx, admin, token.ID)
	if err != nil {
		return nil, fmt.Errorf("impersonating %s: %w", username, err)
	}

	if token.Expires.IsZero() {
		token.Expires = validated.Token.Expires
	}

	if token.Tenant == nil {
		token.Tenant = validated.Token.Tenant
	}

	return &cloudcore.UserAccess{
		Token:          token,
		User:           validated.User,
		ServiceCatalog: catalog,
	}, nil
}
