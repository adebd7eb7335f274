package commands

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginPersistsToken(t *testing.T) {
	useTempConfig(t)

	cloud := newFakeCloud(t)
	loginTo(t, cloud)

	profile, name, err := currentProfile()
	require.NoError(t, err)
	assert.Equal(t, defaultProfileName, name)
	assert.Equal(t, "key-1", profile.APIKey)
	assert.Equal(t, "token-0001-abcdef", profile.Token)
	require.NotNil(t, profile.TokenExpiresAt)

	viper.Set("output", constants.FormatJSON)

	out, err := run(t, NewTokenCommand(), "status")
	require.NoError(t, err)

	var status TokenStatus

	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Authenticated)
	assert.Equal(t, "valid", status.Status)
	assert.Equal(t, "token-00"+constants.MaskedSecret, status.Token)

	_, err = run(t, NewTokenCommand(), "refresh")
	require.NoError(t, err)

	profile, _, err = currentProfile()
	require.NoError(t, err)
	assert.Equal(t, "token-0002-abcdef", profile.Token)
}

func TestCatalogAndEndpoint(t *testing.T) {
	useTempConfig(t)

	cloud := newFakeCloud(t)
	loginTo(t, cloud)

	viper.Set("output", constants.FormatJSON)

	out, err := run(t, NewCatalogCommand())
	require.NoError(t, err)

	var catalog cloudcore.ServiceCatalog

	require.NoError(t, json.Unmarshal([]byte(out), &catalog))
	assert.Len(t, catalog, 2)

	out, err = run(t, NewCatalogCommand(), "--type", "COMPUTE")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &catalog))
	require.Len(t, catalog, 1)
	assert.Equal(t, "cloudServersOpenStack", catalog[0].Name)

	var resolved ResolvedEndpoint

	out, err = run(t, NewEndpointCommand(), "--type", "volume")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resolved))
	assert.Equal(t, "DFW", resolved.Region)
	assert.Equal(t, cloud.server.URL+"/v1/123", resolved.URL)

	viper.Set("region", "ORD")

	out, err = run(t, NewEndpointCommand(), "--type", "volume")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resolved))
	assert.Equal(t, cloud.server.URL+"/ord/v1/123", resolved.URL)

	viper.Set("region", "SYD")

	_, err = run(t, NewEndpointCommand(), "--type", "volume")
	require.ErrorIs(t, err, cloudcore.ErrNoDefaultRegion)

	_, err = run(t, NewEndpointCommand())
	require.ErrorIs(t, err, constants.ErrServiceTypeMissing)

	assert.Equal(t, 1, cloud.tokensIssued())
}

func TestVolumeWait(t *testing.T) {
	useTempConfig(t)

	cloud := newFakeCloud(t, "creating", "creating", "available")
	loginTo(t, cloud)

	viper.Set("output", constants.FormatJSON)

	out, err := run(t, NewVolumeCommand(), "wait", "vol-1", "--interval", "1ms", "--timeout", "5s")
	require.NoError(t, err)

	var volume map[string]interface{}

	require.NoError(t, json.Unmarshal([]byte(out), &volume))
	assert.Equal(t, "available", volume["status"])
	assert.InDelta(t, 50, volume["size"], 0)
}

func TestVolumeWaitFailsOnErrorStatus(t *testing.T) {
	useTempConfig(t)

	cloud := newFakeCloud(t, "creating", "error")
	loginTo(t, cloud)

	_, err := run(t, NewVolumeCommand(), "wait", "vol-1", "--interval", "1ms")
	require.ErrorIs(t, err, cloudcore.ErrResourceState)
}

func TestVolumeWaitDeleted(t *testing.T) {
	useTempConfig(t)

	cloud := newFakeCloud(t)
	loginTo(t, cloud)

	out, err := run(t, NewVolumeCommand(), "wait-deleted", "vol-1", "--interval", "1ms")
	require.NoError(t, err)
	assert.Equal(t, "Volume vol-1 deleted\n", out)
}

func TestRequestCommand(t *testing.T) {
	useTempConfig(t)

	cloud := newFakeCloud(t, "available")
	loginTo(t, cloud)

	out, err := run(t, NewRequestCommand(), "put", "/volumes/vol-1",
		"--type", "volume",
		"--data", `{"volume":{"display_name":"data"}}`,
		"-H", "X-Trace=abc",
		"--include")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "HTTP 200\n"), out)
	assert.Contains(t, out, `"status": "available"`)

	cloud.mu.Lock()
	defer cloud.mu.Unlock()

	assert.JSONEq(t, `{"volume":{"display_name":"data"}}`, cloud.lastBody)
	assert.Equal(t, "abc", cloud.lastHeader)
}

func TestCommandsRequireAProfile(t *testing.T) {
	useTempConfig(t)

	_, err := run(t, NewCatalogCommand())
	require.ErrorIs(t, err, constants.ErrNoCredentialConfigured)

	_, err = run(t, NewTokenCommand(), "status")
	require.ErrorIs(t, err, constants.ErrNoCredentialConfigured)
}
