package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudclient"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// waitFlags are shared by the wait subcommands.
type waitFlags struct {
	interval time.Duration
	timeout  time.Duration
}

func (f *waitFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.interval, "interval", constants.DefaultPollInterval, "delay between status checks")
	cmd.Flags().DurationVar(&f.timeout, "timeout", constants.DefaultPollTimeout, "give up after this long")
}

func (f *waitFlags) apply(config *cloudcore.Config) {
	config.PollInterval = f.interval
	config.PollTimeout = f.timeout
}

// NewVolumeCommand creates the volume command group.
func NewVolumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "volume",
		Aliases: []string{"volumes", "vol"},
		Short:   "Work with block storage volumes",
	}

	cmd.AddCommand(newVolumeGetCommand())
	cmd.AddCommand(newVolumeWaitCommand())
	cmd.AddCommand(newVolumeWaitDeletedCommand())

	return cmd
}

func newVolumeGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get VOLUME_ID",
		Short: "Show a volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			volume, err := s.provider.Volumes(s.identity, s.region).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return displayVolume(cmd, volume)
		},
	}
}

func newVolumeWaitCommand() *cobra.Command {
	var (
		flags  waitFlags
		status string
	)

	cmd := &cobra.Command{
		Use:   "wait VOLUME_ID",
		Short: "Wait for a volume to reach a status",
		Long:  "Poll a volume until it reaches --status, enters an error status, or the timeout elapses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context(), flags.apply)
			if err != nil {
				return err
			}
			defer s.Close()

			volume, err := s.provider.Volumes(s.identity, s.region).WaitForStatus(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}

			return displayVolume(cmd, volume)
		},
	}

	cmd.Flags().StringVar(&status, "status", constants.VolumeStatusAvailable, "status to wait for")
	flags.register(cmd)

	return cmd
}

func newVolumeWaitDeletedCommand() *cobra.Command {
	var flags waitFlags

	cmd := &cobra.Command{
		Use:   "wait-deleted VOLUME_ID",
		Short: "Wait for a volume to be deleted",
		Long:  "Poll a volume until it no longer exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context(), flags.apply)
			if err != nil {
				return err
			}
			defer s.Close()

			err = s.provider.Volumes(s.identity, s.region).WaitForDeleted(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Volume %s deleted\n", args[0])

			return nil
		},
	}

	flags.register(cmd)

	return cmd
}

func displayVolume(cmd *cobra.Command, volume *cloudclient.Volume) error {
	return writeOutput(cmd.OutOrStdout(), volume, func(table *tablewriter.Table) {
		table.Header("Property", "Value")
		_ = table.Append("ID", volume.ID)
		_ = table.Append("Name", valueOrNA(volume.Name))
		_ = table.Append("Status", volume.Status)
		_ = table.Append("Size (GB)", strconv.Itoa(volume.Size))
		_ = table.Append("Type", valueOrNA(volume.VolumeType))
	})
}
