package commands

import (
	"fmt"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// ResolvedEndpoint is what endpoint reports.
type ResolvedEndpoint struct {
	Type   string `json:"type"             yaml:"type"`
	Name   string `json:"name,omitempty"   yaml:"name,omitempty"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	URL    string `json:"url"              yaml:"url"`
}

// NewEndpointCommand creates the endpoint command.
func NewEndpointCommand() *cobra.Command {
	var (
		serviceType string
		serviceName string
		internal    bool
	)

	cmd := &cobra.Command{
		Use:   "endpoint",
		Short: "Resolve a service endpoint",
		Long:  "Select the endpoint of a catalog service for the effective region and print its URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serviceType == "" {
				return constants.ErrServiceTypeMissing
			}

			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			selected, err := s.provider.ResolveEndpoint(cmd.Context(), s.identity, serviceType, serviceName, s.region)
			if err != nil {
				return fmt.Errorf("failed to resolve endpoint: %w", err)
			}

			result := ResolvedEndpoint{
				Type:   serviceType,
				Name:   serviceName,
				Region: selected.Region,
				URL:    selected.URL(internal),
			}

			return writeOutput(cmd.OutOrStdout(), result, func(table *tablewriter.Table) {
				table.Header("Type", "Name", "Region", "URL")
				_ = table.Append(result.Type, valueOrNA(result.Name), valueOrNA(result.Region), result.URL)
			})
		},
	}

	cmd.Flags().StringVarP(&serviceType, "type", "t", "", "service type, e.g. volume")
	cmd.Flags().StringVarP(&serviceName, "name", "n", "", "service name when several share a type")
	cmd.Flags().BoolVar(&internal, "internal", false, "print the internal URL when available")

	return cmd
}
