//go:build integration

package integration

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
)

// TestConfig holds configuration for integration tests.
type TestConfig struct {
	IdentityEndpoint string
	Username         string
	APIKey           string
	Password         string
	TenantID         string
	Region           string
	ImpersonateUser  string
	VolumeID         string
	BinaryPath       string
	Verbose          bool
}

// LoadTestConfig loads configuration from environment variables.
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		IdentityEndpoint: os.Getenv("CLOUDCORE_IDENTITY_ENDPOINT"),
		Username:         os.Getenv("CLOUDCORE_USERNAME"),
		APIKey:           os.Getenv("CLOUDCORE_API_KEY"),
		Password:         os.Getenv("CLOUDCORE_PASSWORD"),
		TenantID:         os.Getenv("CLOUDCORE_TENANT_ID"),
		Region:           os.Getenv("CLOUDCORE_REGION"),
		ImpersonateUser:  os.Getenv("CLOUDCORE_IMPERSONATE_USER"),
		VolumeID:         os.Getenv("CLOUDCORE_VOLUME_ID"),
		BinaryPath:       getBinaryPath(),
		Verbose:          os.Getenv("CLOUDCORE_VERBOSE") == "true",
	}
}

func getBinaryPath() string {
	if path := os.Getenv("CLOUDCORE_BINARY_PATH"); path != "" {
		return path
	}

	for _, candidate := range []string{"../../cloudcore", "./cloudcore", "../cloudcore"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "cloudcore"
}

// Credential returns the identity under test.
func (config *TestConfig) Credential() cloudcore.Credential {
	return cloudcore.Credential{
		Username: config.Username,
		APIKey:   config.APIKey,
		Password: config.Password,
		TenantID: config.TenantID,
		Region:   config.Region,
	}
}

// SkipIfMissingConfig skips the test when no credential is configured.
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	t.Helper()

	if config.Username == "" || (config.APIKey == "" && config.Password == "") {
		t.Skip("CLOUDCORE_USERNAME and CLOUDCORE_API_KEY or CLOUDCORE_PASSWORD not set, skipping integration test")
	}
}

// SkipIfMissingBinary skips the test when the CLI binary cannot be found.
func (config *TestConfig) SkipIfMissingBinary(t *testing.T) {
	t.Helper()

	_, err := exec.LookPath(config.BinaryPath)
	if err != nil {
		t.Skipf("cloudcore binary not found at %s, skipping integration test", config.BinaryPath)
	}
}

// CommandRunner runs the CLI against a private config file.
type CommandRunner struct {
	config     *TestConfig
	t          *testing.T
	configFile string
}

// NewCommandRunner creates a new command runner.
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	t.Helper()

	return &CommandRunner{
		config:     config,
		t:          t,
		configFile: filepath.Join(t.TempDir(), "config.yml"),
	}
}

// Run executes a cloudcore command and returns its output.
func (runner *CommandRunner) Run(args ...string) (string, string, error) {
	args = append([]string{"--config", runner.configFile}, args...)

	// #nosec G204
	cmd := exec.Command(runner.config.BinaryPath, args...)

	var stdoutBuf, stderrBuf bytes.Buffer

	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.BinaryPath, strings.Join(args, " "))
	}

	err := cmd.Run()
	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// Login stores the credential under test in the runner's config.
func (runner *CommandRunner) Login() (string, string, error) {
	args := []string{"login", "--username", runner.config.Username}

	if runner.config.IdentityEndpoint != "" {
		args = append(args, "--identity-endpoint", runner.config.IdentityEndpoint)
	}

	if runner.config.TenantID != "" {
		args = append(args, "--tenant-id", runner.config.TenantID)
	}

	if runner.config.Region != "" {
		args = append(args, "--region", runner.config.Region)
	}

	if runner.config.APIKey != "" {
		args = append(args, "--api-key", runner.config.APIKey)
	} else {
		args = append(args, "--password", runner.config.Password)
	}

	return runner.Run(args...)
}

// AssertJSONOutput verifies command output looks like JSON.
func AssertJSONOutput(t *testing.T, output string) {
	t.Helper()

	output = strings.TrimSpace(output)
	if !strings.HasPrefix(output, "{") && !strings.HasPrefix(output, "[") {
		t.Errorf("Output does not appear to be JSON: %s", output)
	}
}
