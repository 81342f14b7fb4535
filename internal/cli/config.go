package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/murmur/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a configuration file",
		Long: `Validate a CUE configuration file against the schema and print the
resolved configuration, defaults included.

Example:
  murmur config validate ./murmur.cue
  murmur config validate ./murmur.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(rootOpts, args[0], cmd)
		},
	})

	return cmd
}

func runConfigValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	cfg, err := config.Load(path)
	if err != nil {
		_ = f.Error(CodeConfig, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}

	if opts.Format == "json" {
		return f.Success(cfg)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ %s is valid\n", path)
	fmt.Fprintf(w, "  city:     %s\n", cfg.City)
	fmt.Fprintf(w, "  database: %s\n", cfg.Database)
	fmt.Fprintf(w, "  mode:     %s\n", cfg.RankingMode())
	fmt.Fprintf(w, "  ranking:  recent=%d hot=%d/%d\n", cfg.Ranking.RecentWindow, cfg.Ranking.HotWindow, cfg.Ranking.HotCandidates)
	fmt.Fprintf(w, "  posts:    max %d runes\n", cfg.Posts.MaxBodyRunes)
	if cfg.Relay.RedisURL != "" {
		fmt.Fprintf(w, "  relay:    %s (%s)\n", cfg.Relay.RedisURL, cfg.Relay.Channel)
	}
	if cfg.Debug.Addr != "" {
		fmt.Fprintf(w, "  debug:    %s\n", cfg.Debug.Addr)
	}
	return nil
}
