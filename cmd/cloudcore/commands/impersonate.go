package commands

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// ImpersonationResult is what impersonate reports.
type ImpersonationResult struct {
	Username      string   `json:"username"       yaml:"username"`
	UserID        string   `json:"user_id"        yaml:"user_id"`
	DefaultRegion string   `json:"default_region" yaml:"default_region"`
	Token         string   `json:"token"          yaml:"token"`
	ExpiresAt     string   `json:"expires_at"     yaml:"expires_at"`
	Services      []string `json:"services"       yaml:"services"`
}

// NewImpersonateCommand creates the impersonate command.
func NewImpersonateCommand() *cobra.Command {
	var (
		ttl       time.Duration
		showToken bool
	)

	cmd := &cobra.Command{
		Use:   "impersonate USERNAME",
		Short: "Obtain a token acting as another user",
		Long:  "Use the selected profile's admin privileges to obtain a token and catalog for USERNAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			access, err := s.provider.Impersonate(cmd.Context(), s.identity, args[0], ttl)
			if err != nil {
				return fmt.Errorf("failed to impersonate %s: %w", args[0], err)
			}

			token := maskToken(access.Token.ID)
			if showToken {
				token = access.Token.ID
			}

			result := ImpersonationResult{
				Username:      access.User.Name,
				UserID:        access.User.ID,
				DefaultRegion: valueOrNA(access.User.DefaultRegion),
				Token:         token,
				ExpiresAt:     access.Token.Expires.Format(timeLayout),
				Services:      make([]string, 0, len(access.ServiceCatalog)),
			}

			for _, entry := range access.ServiceCatalog {
				result.Services = append(result.Services, entry.Type)
			}

			return writeOutput(cmd.OutOrStdout(), result, func(table *tablewriter.Table) {
				table.Header("Property", "Value")
				_ = table.Append("Username", result.Username)
				_ = table.Append("User ID", result.UserID)
				_ = table.Append("Default Region", result.DefaultRegion)
				_ = table.Append("Token", result.Token)
				_ = table.Append("Expires At", result.ExpiresAt)
				_ = table.Append("Services", fmt.Sprintf("%d", len(result.Services)))
			})
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "requested token lifetime (default 3h)")
	cmd.Flags().BoolVar(&showToken, "show-token", false, "print the full token id")

	return cmd
}
