package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/murmur/internal/store"
)

// CityOptions holds flags shared by the city subcommands.
type CityOptions struct {
	*RootOptions
	Database string
}

// NewCityCommand creates the city command group.
func NewCityCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CityOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "city",
		Short: "Manage cities",
		Long: `Add and list the cities posts are scoped to.

Examples:
  murmur city add sf "San Francisco" --db ./murmur.db
  murmur city list --db ./murmur.db`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(&cobra.Command{
		Use:           "add <slug> <name>",
		Short:         "Add a city",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCityAdd(opts, args[0], args[1], cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List cities",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCityList(opts, cmd)
		},
	})

	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runCityAdd(opts *CityOptions, slug, name string, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	city, err := st.AddCity(commandContext(cmd), slug, name)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to add city", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return f.Success(city)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added city %d %s %q\n", city.ID, city.Slug, city.Name)
	return nil
}

func runCityList(opts *CityOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	cities, err := st.ListCities(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list cities", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return f.Success(cities)
	}
	if len(cities) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cities.")
		return nil
	}
	for _, c := range cities {
		fmt.Fprintf(cmd.OutOrStdout(), "%d %s %q\n", c.ID, c.Slug, c.Name)
	}
	return nil
}
