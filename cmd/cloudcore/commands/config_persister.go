package commands

import (
	"fmt"
	"sync"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
)

// ConfigPersister implements cloudcore.TokenPersister by writing refreshed
// tokens to the profile they were issued for.
type ConfigPersister struct {
	mutex   sync.Mutex
	profile string
	now     func() time.Time
}

// NewConfigPersister creates a persister for profile.
func NewConfigPersister(profile string) *ConfigPersister {
	return &ConfigPersister{profile: profile, now: time.Now}
}

var _ cloudcore.TokenPersister = (*ConfigPersister)(nil)

// PersistToken stores token on the persister's profile.
func (p *ConfigPersister) PersistToken(identity string, token cloudcore.Token) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	profile, exists := config.Profiles[p.profile]
	if !exists {
		return fmt.Errorf("profile %q for %s: %w", p.profile, identity, constants.ErrNoCredentialConfigured)
	}

	profile.Token = token.ID
	profile.TokenExpiresAt = nil

	if !token.Expires.IsZero() {
		expires := token.Expires
		profile.TokenExpiresAt = &expires
	}

	now := p.now()
	profile.LastRefreshed = &now

	return saveConfig(config)
}
