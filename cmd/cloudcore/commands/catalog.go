package commands

import (
	"fmt"

	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand() *cobra.Command {
	var serviceType string

	cmd := &cobra.Command{
		Use:     "catalog",
		Aliases: []string{"services"},
		Short:   "List the service catalog",
		Long:    "List the services and endpoints available to the selected profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			access, err := s.provider.GetUserAccess(cmd.Context(), s.identity, false)
			if err != nil {
				return fmt.Errorf("failed to get service catalog: %w", err)
			}

			catalog := access.ServiceCatalog
			if serviceType != "" {
				catalog = catalog.Find(serviceType)
			}

			return writeOutput(cmd.OutOrStdout(), catalog, func(table *tablewriter.Table) {
				fillCatalogTable(table, catalog)
			})
		},
	}

	cmd.Flags().StringVarP(&serviceType, "type", "t", "", "only list services of this type")

	return cmd
}

func fillCatalogTable(table *tablewriter.Table, catalog cloudcore.ServiceCatalog) {
	table.Header("Type", "Name", "Region", "Public URL", "Internal URL")

	for _, entry := range catalog {
		for _, endpoint := range entry.Endpoints {
			_ = table.Append(entry.Type, entry.Name, valueOrNA(endpoint.Region),
				endpoint.PublicURL, valueOrNA(endpoint.InternalURL))
		}
	}
}
