package commands

import (
	"context"
	"os"

	"github.com/fivetwenty-io/cloudcore/pkg/cloudclient"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
	"github.com/spf13/viper"
)

// session is a provider bound to the selected profile.
type session struct {
	provider *cloudclient.Provider
	identity cloudcore.Credential
	profile  string
	region   string
}

// newSession builds a provider from the selected profile. mutate adjusts the
// configuration before the provider is built.
func newSession(ctx context.Context, mutate ...func(*cloudcore.Config)) (*session, error) {
	profile, name, err := currentProfile()
	if err != nil {
		return nil, err
	}

	identity := profile.Credential()

	err = identity.Validate()
	if err != nil {
		return nil, err
	}

	region := viper.GetString("region")
	if region == "" {
		region = profile.Region
	}

	config := &cloudcore.Config{
		IdentityEndpoint: profile.IdentityEndpoint,
		Credential:       &identity,
		DefaultRegion:    region,
		TokenPersister:   NewConfigPersister(name),
		Store:            profile.Store.CacheConfig(),
	}

	if viper.GetBool("verbose") {
		config.Logger = NewStderrLogger(os.Stderr, true)
		config.Debug = true
	}

	for _, fn := range mutate {
		fn(config)
	}

	provider, err := cloudclient.New(ctx, config)
	if err != nil {
		return nil, err
	}

	return &session{provider: provider, identity: identity, profile: name, region: region}, nil
}

// Close releases the provider.
func (s *session) Close() {
	_ = s.provider.Close()
}
