package commands

import (
	"fmt"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// TokenStatus describes a profile's stored token.
type TokenStatus struct {
	Profile         string `json:"profile"                  yaml:"profile"`
	Username        string `json:"username"                 yaml:"username"`
	Authenticated   bool   `json:"authenticated"            yaml:"authenticated"`
	Token           string `json:"token,omitempty"          yaml:"token,omitempty"`
	Status          string `json:"status"                   yaml:"status"`
	ExpiresAt       string `json:"expires_at,omitempty"     yaml:"expires_at,omitempty"`
	TimeUntilExpiry string `json:"time_until_expiry"        yaml:"time_until_expiry"`
	LastRefreshed   string `json:"last_refreshed,omitempty" yaml:"last_refreshed,omitempty"`
}

// NewTokenCommand creates the token command group.
func NewTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage authentication tokens",
		Long:  "Commands for managing authentication tokens including status and refresh",
	}

	cmd.AddCommand(newTokenStatusCommand())
	cmd.AddCommand(newTokenRefreshCommand())

	return cmd
}

func newTokenStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show token status and expiration",
		Long:  "Display the stored token of the selected profile including its expiration time",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, name, err := currentProfile()
			if err != nil {
				return err
			}

			return displayTokenStatus(cmd, buildTokenStatus(name, profile, time.Now()))
		},
	}
}

func newTokenRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the token",
		Long:  "Authenticate again with the stored credential and save the new token",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			_, err = s.provider.GetUserAccess(cmd.Context(), s.identity, true)
			if err != nil {
				return fmt.Errorf("failed to refresh token: %w", err)
			}

			profile, name, err := currentProfile()
			if err != nil {
				return err
			}

			return displayTokenStatus(cmd, buildTokenStatus(name, profile, time.Now()))
		},
	}
}

func buildTokenStatus(name string, profile *Profile, now time.Time) TokenStatus {
	status := TokenStatus{
		Profile:         name,
		Username:        profile.Username,
		Authenticated:   profile.Token != "",
		Token:           maskToken(profile.Token),
		Status:          "not authenticated",
		TimeUntilExpiry: constants.NotAvailable,
	}

	if profile.LastRefreshed != nil {
		status.LastRefreshed = profile.LastRefreshed.Format(timeLayout)
	}

	if !status.Authenticated {
		return status
	}

	var expires time.Time
	if profile.TokenExpiresAt != nil {
		expires = *profile.TokenExpiresAt
		status.ExpiresAt = expires.Format(timeLayout)
	}

	status.Status, status.TimeUntilExpiry = expiryStatus(expires, now)

	return status
}

func displayTokenStatus(cmd *cobra.Command, status TokenStatus) error {
	return writeOutput(cmd.OutOrStdout(), status, func(table *tablewriter.Table) {
		table.Header("Property", "Value")
		_ = table.Append("Profile", status.Profile)
		_ = table.Append("Username", status.Username)
		_ = table.Append("Authenticated", fmt.Sprintf("%v", status.Authenticated))
		_ = table.Append("Status", status.Status)

		if status.Token != "" {
			_ = table.Append("Token", status.Token)
		}

		if status.ExpiresAt != "" {
			_ = table.Append("Expires At", status.ExpiresAt)
		}

		_ = table.Append("Time Until Expiry", status.TimeUntilExpiry)

		if status.LastRefreshed != "" {
			_ = table.Append("Last Refreshed", status.LastRefreshed)
		}
	})
}
