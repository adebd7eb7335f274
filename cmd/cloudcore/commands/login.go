package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

type loginFlags struct {
	identityEndpoint string
	username         string
	password         string
	apiKey           string
	tenantID         string
	tenantName       string
}

// LoginResult is what login reports.
type LoginResult struct {
	Profile       string `json:"profile"        yaml:"profile"`
	Username      string `json:"username"       yaml:"username"`
	DefaultRegion string `json:"default_region" yaml:"default_region"`
	Token         string `json:"token"          yaml:"token"`
	ExpiresAt     string `json:"expires_at"     yaml:"expires_at"`
}

// NewLoginCommand creates the login command.
func NewLoginCommand() *cobra.Command {
	var flags loginFlags

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store a profile",
		Long:  "Authenticate with the identity service and save the credential and token to the selected profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			name := profileName(config)

			profile, ok := config.Profiles[name]
			if !ok {
				profile = &Profile{}
			}

			err = flags.apply(profile, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			config.Profiles[name] = profile
			config.CurrentProfile = name

			err = saveConfig(config)
			if err != nil {
				return err
			}

			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			access, err := s.provider.Authenticate(cmd.Context(), s.identity)
			if err != nil {
				return fmt.Errorf("failed to authenticate: %w", err)
			}

			result := LoginResult{
				Profile:       name,
				Username:      access.User.Name,
				DefaultRegion: valueOrNA(access.User.DefaultRegion),
				Token:         maskToken(access.Token.ID),
				ExpiresAt:     access.Token.Expires.Format(timeLayout),
			}

			return writeOutput(cmd.OutOrStdout(), result, func(table *tablewriter.Table) {
				table.Header("Property", "Value")
				_ = table.Append("Profile", result.Profile)
				_ = table.Append("Username", result.Username)
				_ = table.Append("Default Region", result.DefaultRegion)
				_ = table.Append("Token", result.Token)
				_ = table.Append("Expires At", result.ExpiresAt)
			})
		},
	}

	cmd.Flags().StringVar(&flags.identityEndpoint, "identity-endpoint", "", "identity service URL")
	cmd.Flags().StringVarP(&flags.username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&flags.password, "password", "p", "", "password (prompted when neither --password nor --api-key is given)")
	cmd.Flags().StringVarP(&flags.apiKey, "api-key", "k", "", "API key")
	cmd.Flags().StringVar(&flags.tenantID, "tenant-id", "", "tenant id")
	cmd.Flags().StringVar(&flags.tenantName, "tenant-name", "", "tenant name")

	return cmd
}

// apply merges the flags into profile, prompting for what is still missing.
func (f *loginFlags) apply(profile *Profile, in io.Reader, out io.Writer) error {
	if f.identityEndpoint != "" {
		profile.IdentityEndpoint = f.identityEndpoint
	}

	if f.tenantID != "" {
		profile.TenantID = f.tenantID
	}

	if f.tenantName != "" {
		profile.TenantName = f.tenantName
	}

	if region := viper.GetString("region"); region != "" {
		profile.Region = region
	}

	if f.username != "" {
		profile.Username = f.username
	}

	reader := bufio.NewReader(in)

	if profile.Username == "" {
		_, _ = fmt.Fprint(out, "Username: ")

		line, _ := reader.ReadString('\n')
		profile.Username = strings.TrimSpace(line)
	}

	switch {
	case f.apiKey != "":
		profile.APIKey = f.apiKey
		profile.Password = ""
	case f.password != "":
		profile.Password = f.password
		profile.APIKey = ""
	case profile.APIKey == "" && profile.Password == "":
		password, err := readPassword(in, reader, out)
		if err != nil {
			return err
		}

		profile.Password = password
	}

	if profile.APIKey == "" && profile.Password == "" {
		return constants.ErrNoSecretProvided
	}

	profile.Token = ""
	profile.TokenExpiresAt = nil

	return nil
}

// readPassword reads without echo from a terminal, or a line from reader otherwise.
func readPassword(in io.Reader, reader *bufio.Reader, out io.Writer) (string, error) {
	_, _ = fmt.Fprint(out, "Password: ")

	if in == os.Stdin && term.IsTerminal(int(syscall.Stdin)) {
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		_, _ = fmt.Fprintln(out)

		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		return string(bytePassword), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return strings.TrimSpace(line), nil
}

