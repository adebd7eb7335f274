package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// useTempConfig points the CLI at an empty config file for the test.
func useTempConfig(t *testing.T) string {
	t.Helper()

	configFile := filepath.Join(t.TempDir(), "config.yml")

	viper.Reset()
	viper.SetConfigFile(configFile)
	t.Cleanup(viper.Reset)

	return configFile
}

// run executes cmd with args and returns its output.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

// findSubcommand finds a subcommand by name within a cobra command.
func findSubcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

// fakeCloud serves the identity API plus volume and compute APIs.
type fakeCloud struct {
	server *httptest.Server

	mu             sync.Mutex
	issued         int
	volumeStatuses []string
	volumeCalls    int
	lastBody       string
	lastHeader     string
}

func newFakeCloud(t *testing.T, volumeStatuses ...string) *fakeCloud {
	t.Helper()

	c := &fakeCloud{volumeStatuses: volumeStatuses}
	c.server = httptest.NewServer(http.HandlerFunc(c.serveHTTP))
	t.Cleanup(c.server.Close)

	return c
}

func (c *fakeCloud) serveHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v2.0/tokens":
		c.issued++

		_, _ = fmt.Fprintf(w, `{"access":{
			"token":{"id":"token-%04d-abcdef","expires":%q,"tenant":{"id":"123","name":"123"}},
			"user":{"id":"u1","name":"alice","RAX-AUTH:defaultRegion":"DFW"},
			"serviceCatalog":[
				{"name":"cloudBlockStorage","type":"volume","endpoints":[
					{"region":"DFW","tenantId":"123","publicURL":"%[3]s/v1/123"},
					{"region":"ORD","tenantId":"123","publicURL":"%[3]s/ord/v1/123"}
				]},
				{"name":"cloudServersOpenStack","type":"compute","endpoints":[
					{"region":"DFW","tenantId":"123","publicURL":"%[3]s/v2/123"}
				]}
			]
		}}`, c.issued, time.Now().Add(time.Hour).UTC().Format(time.RFC3339), c.server.URL)
	case strings.HasPrefix(r.URL.Path, "/v1/123/volumes/"):
		if !strings.HasPrefix(r.Header.Get("X-Auth-Token"), "token-") {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		var body bytes.Buffer

		_, _ = body.ReadFrom(r.Body)
		c.lastBody = body.String()
		c.lastHeader = r.Header.Get("X-Trace")

		if len(c.volumeStatuses) == 0 {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		status := c.volumeStatuses[min(c.volumeCalls, len(c.volumeStatuses)-1)]
		c.volumeCalls++

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"volume": map[string]interface{}{"id": "vol-1", "status": status, "size": 50},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (c *fakeCloud) tokensIssued() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.issued
}

// loginTo stores a profile for c and authenticates it.
func loginTo(t *testing.T, c *fakeCloud) {
	t.Helper()

	_, err := run(t, NewLoginCommand(),
		"--identity-endpoint", c.server.URL,
		"--username", "alice",
		"--api-key", "key-1",
		"--tenant-id", "123")
	require.NoError(t, err)
}
