package commands

import (
	"fmt"
	"strconv"

	"github.com/fivetwenty-io/cloudcore/pkg/cloudclient"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewServerCommand creates the server command group.
func NewServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "server",
		Aliases: []string{"servers"},
		Short:   "Work with compute servers",
	}

	cmd.AddCommand(newServerWaitCommand())
	cmd.AddCommand(newServerWaitDeletedCommand())

	return cmd
}

func newServerWaitCommand() *cobra.Command {
	var flags waitFlags

	cmd := &cobra.Command{
		Use:   "wait SERVER_ID",
		Short: "Wait for a server to become active",
		Long:  "Poll a server until it is ACTIVE, enters ERROR, or the timeout elapses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context(), flags.apply)
			if err != nil {
				return err
			}
			defer s.Close()

			server, err := s.provider.Servers(s.identity, s.region).WaitForActive(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return displayServer(cmd, server)
		},
	}

	flags.register(cmd)

	return cmd
}

func newServerWaitDeletedCommand() *cobra.Command {
	var flags waitFlags

	cmd := &cobra.Command{
		Use:   "wait-deleted SERVER_ID",
		Short: "Wait for a server to be deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context(), flags.apply)
			if err != nil {
				return err
			}
			defer s.Close()

			err = s.provider.Servers(s.identity, s.region).WaitForDeleted(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Server %s deleted\n", args[0])

			return nil
		},
	}

	flags.register(cmd)

	return cmd
}

func displayServer(cmd *cobra.Command, server *cloudclient.Server) error {
	return writeOutput(cmd.OutOrStdout(), server, func(table *tablewriter.Table) {
		table.Header("Property", "Value")
		_ = table.Append("ID", server.ID)
		_ = table.Append("Name", server.Name)
		_ = table.Append("Status", server.Status)
		_ = table.Append("Progress", strconv.Itoa(server.Progress))
		_ = table.Append("Task State", valueOrNA(server.TaskState))
	})
}
