package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	defaultProfileName = "default"
	defaultStoreBucket = "cloudcore_tokens"
)

// Config represents the CLI configuration.
type Config struct {
	Profiles       map[string]*Profile `json:"profiles,omitempty"        yaml:"profiles,omitempty"`
	CurrentProfile string              `json:"current_profile,omitempty" yaml:"current_profile,omitempty"`

	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// Profile is one stored identity.
type Profile struct {
	IdentityEndpoint string `json:"identity_endpoint,omitempty" yaml:"identity_endpoint,omitempty"`
	Username         string `json:"username"                    yaml:"username"`
	Password         string `json:"password,omitempty"          yaml:"password,omitempty"`
	APIKey           string `json:"api_key,omitempty"           yaml:"api_key,omitempty"`
	TenantID         string `json:"tenant_id,omitempty"         yaml:"tenant_id,omitempty"`
	TenantName       string `json:"tenant_name,omitempty"       yaml:"tenant_name,omitempty"`
	Region           string `json:"region,omitempty"            yaml:"region,omitempty"`

	Token          string     `json:"token,omitempty"            yaml:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty" yaml:"token_expires_at,omitempty"`
	LastRefreshed  *time.Time `json:"last_refreshed,omitempty"   yaml:"last_refreshed,omitempty"`

	Store *StoreConfig `json:"store,omitempty" yaml:"store,omitempty"`
}

// StoreConfig selects a second-level token store shared between invocations.
type StoreConfig struct {
	Type   string        `json:"type"             yaml:"type"`
	URL    string        `json:"url,omitempty"    yaml:"url,omitempty"`
	Bucket string        `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	TTL    time.Duration `json:"ttl,omitempty"    yaml:"ttl,omitempty"`
}

// CacheConfig converts the stored settings to a store configuration.
func (s *StoreConfig) CacheConfig() *cloudcore.CacheConfig {
	if s == nil {
		return nil
	}

	options := cloudcore.DefaultCacheOptions()
	if s.TTL > 0 {
		options.TTL = s.TTL
	}

	config := &cloudcore.CacheConfig{
		Type:    cloudcore.CacheType(s.Type),
		Options: options,
	}

	if config.Type == cloudcore.CacheTypeNATS || config.Type == cloudcore.CacheTypeTiered {
		bucket := s.Bucket
		if bucket == "" {
			bucket = defaultStoreBucket
		}

		config.NATS = &cloudcore.NATSKVConfig{URL: s.URL, Bucket: bucket, TTL: options.TTL}
	}

	return config
}

// Credential returns the profile's identity.
func (p *Profile) Credential() cloudcore.Credential {
	return cloudcore.Credential{
		Username:   p.Username,
		Password:   p.Password,
		APIKey:     p.APIKey,
		TenantID:   p.TenantID,
		TenantName: p.TenantName,
		Region:     p.Region,
	}
}

// store returns the profile's store settings, creating a NATS store when unset.
func (p *Profile) store() *StoreConfig {
	if p.Store == nil {
		p.Store = &StoreConfig{Type: string(cloudcore.CacheTypeNATS)}
	}

	return p.Store
}

// masked returns a copy safe to display.
func (p *Profile) masked() *Profile {
	display := *p

	if display.Password != "" {
		display.Password = constants.MaskedSecret
	}

	if display.APIKey != "" {
		display.APIKey = constants.MaskedSecret
	}

	display.Token = maskToken(display.Token)

	return &display
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Manage cloudcore CLI profiles and settings",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigUseCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display every stored profile with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			display := &Config{
				Profiles:       make(map[string]*Profile, len(config.Profiles)),
				CurrentProfile: config.CurrentProfile,
				Output:         config.Output,
			}

			for name, profile := range config.Profiles {
				display.Profiles[name] = profile.masked()
			}

			return writeOutput(cmd.OutOrStdout(), display, func(table *tablewriter.Table) {
				table.Header("Profile", "Current", "Username", "Identity Endpoint", "Region", "Token")

				for _, name := range sortedProfileNames(display) {
					profile := display.Profiles[name]

					current := ""
					if name == display.CurrentProfile {
						current = constants.CheckMarkSymbol
					}

					_ = table.Append(name, current, profile.Username, profile.IdentityEndpoint,
						valueOrNA(profile.Region), valueOrNA(profile.Token))
				}
			})
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a profile value",
		Long:  "Set a value on the selected profile, creating the profile if needed",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			name := profileName(config)

			profile, ok := config.Profiles[name]
			if !ok {
				profile = &Profile{}
				config.Profiles[name] = profile
			}

			err = setProfileValue(profile, args[0], args[1])
			if err != nil {
				return err
			}

			if config.CurrentProfile == "" {
				config.CurrentProfile = name
			}

			err = saveConfig(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s on profile %s\n", args[0], name)

			return nil
		},
	}
}

func newConfigUseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use PROFILE",
		Short: "Select the current profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			if _, ok := config.Profiles[args[0]]; !ok {
				return fmt.Errorf("profile %q: %w", args[0], constants.ErrNoCredentialConfigured)
			}

			config.CurrentProfile = args[0]

			err = saveConfig(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Using profile %s\n", args[0])

			return nil
		},
	}
}

func setProfileValue(profile *Profile, key, value string) error {
	switch strings.ReplaceAll(strings.ToLower(key), "-", "_") {
	case "identity_endpoint":
		profile.IdentityEndpoint = value
	case "username":
		profile.Username = value
	case "password":
		profile.Password = value
		profile.APIKey = ""
	case "api_key":
		profile.APIKey = value
		profile.Password = ""
	case "tenant_id":
		profile.TenantID = value
	case "tenant_name":
		profile.TenantName = value
	case "region":
		profile.Region = value
	case "store":
		if value == "" || cloudcore.CacheType(value) == cloudcore.CacheTypeNone {
			profile.Store = nil

			return nil
		}

		switch cloudcore.CacheType(value) {
		case cloudcore.CacheTypeMemory, cloudcore.CacheTypeNATS, cloudcore.CacheTypeTiered:
		default:
			return fmt.Errorf("%w: %s", cloudcore.ErrUnsupportedCacheType, value)
		}

		profile.store().Type = value
	case "store_url":
		profile.store().URL = value
	case "store_bucket":
		profile.store().Bucket = value
	case "store_ttl":
		ttl, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("parsing store_ttl: %w", err)
		}

		profile.store().TTL = ttl
	default:
		return fmt.Errorf("%w: %s", constants.ErrConfigKeyUnknown, key)
	}

	return nil
}

// configFilePath returns the file viper resolved, or the default location.
func configFilePath() (string, error) {
	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		return configFile, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".cloudcore", "config.yml"), nil
}

func loadConfig() (*Config, error) {
	configFile, err := configFilePath()
	if err != nil {
		return nil, err
	}

	config := &Config{}

	// configFile comes from the --config flag or the user's home directory.
	// #nosec G304
	data, err := os.ReadFile(configFile)

	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		err = yaml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if config.Profiles == nil {
		config.Profiles = make(map[string]*Profile)
	}

	return config, nil
}

func saveConfig(config *Config) error {
	configFile, err := configFilePath()
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(configFile), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	err = os.WriteFile(configFile, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// profileName returns the --identity profile, the current profile or "default".
func profileName(config *Config) string {
	if name := viper.GetString("identity"); name != "" {
		return name
	}

	if config.CurrentProfile != "" {
		return config.CurrentProfile
	}

	return defaultProfileName
}

// currentProfile returns the selected profile and its name.
func currentProfile() (*Profile, string, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, "", err
	}

	name := profileName(config)

	profile, ok := config.Profiles[name]
	if !ok || profile.Username == "" {
		return nil, name, fmt.Errorf("profile %q: %w", name, constants.ErrNoCredentialConfigured)
	}

	return profile, name, nil
}

func sortedProfileNames(config *Config) []string {
	names := make([]string, 0, len(config.Profiles))
	for name := range config.Profiles {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func valueOrNA(value string) string {
	if value == "" {
		return constants.NotAvailable
	}

	return value
}
