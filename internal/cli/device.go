package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/murmur/internal/identity"
	"github.com/roach88/murmur/internal/store"
)

// DeviceOptions holds flags for the device command.
type DeviceOptions struct {
	*RootOptions
	Database string
}

// NewDeviceCommand creates the device command.
func NewDeviceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeviceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "device",
		Short: "Print the device id",
		Long: `Print the device id votes are recorded under, generating and storing
one in the database if none exists yet.

Example:
  murmur device --db ./murmur.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runDevice(opts *DeviceOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	id, err := identity.NewProvider(st).Init(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to initialize device identity", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return f.Success(map[string]string{"device_id": id})
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
