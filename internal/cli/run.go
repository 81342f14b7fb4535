package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/murmur/internal/config"
	"github.com/roach88/murmur/internal/debugserver"
	"github.com/roach88/murmur/internal/engine"
	"github.com/roach88/murmur/internal/identity"
	"github.com/roach88/murmur/internal/ir"
	"github.com/roach88/murmur/internal/metrics"
	"github.com/roach88/murmur/internal/relay"
	"github.com/roach88/murmur/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
	City       string
	Mode       string

	// In overrides the command input (for testing). Defaults to the
	// command's stdin.
	In io.Reader
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive client",
		Long: `Open the local database, load a city and read commands from stdin.

Flags override the configuration file; without --config the built-in
defaults apply. The Redis relay and the debug server start only when the
configuration enables them.

Example:
  murmur run --db ./murmur.db --city sf
  murmur run --config ./murmur.cue --mode hot`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to configuration file (CUE)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.City, "city", "", "city slug to load (overrides config)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "ranking mode hot|recent (overrides config)")

	return cmd
}

// resolveConfig loads the configuration file, or the defaults, and applies
// flag overrides.
func resolveConfig(opts *RunOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.City != "" {
		cfg.City = opts.City
	}
	if opts.Mode != "" {
		if _, err := ir.ParseMode(opts.Mode); err != nil {
			return config.Config{}, err
		}
		cfg.Mode = opts.Mode
	}
	return cfg, nil
}

func runClient(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.SlogLevel(), opts.Verbose)
	out := &lockedWriter{w: cmd.OutOrStdout()}
	formatter := &OutputFormatter{Format: opts.Format, Writer: out, Verbose: opts.Verbose}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	ident := identity.NewProvider(st)
	deviceID, err := ident.Init(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize device identity", err)
	}
	logger.Info("device ready", "device", deviceID)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	eng := engine.New(st, ident,
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithWindows(cfg.Windows()),
		engine.WithMaxBodyRunes(cfg.Posts.MaxBodyRunes),
		engine.WithMode(cfg.RankingMode()),
		engine.WithErrorHook(func(ev engine.Event, err error) {
			if werr := formatter.EventFailed(ev, err); werr != nil {
				logger.Warn("failed to report event error", "error", werr)
			}
		}),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})

	if cfg.Relay.RedisURL != "" {
		client, err := relay.Dial(gctx, cfg.Relay.RedisURL)
		if err != nil {
			cancel()
			_ = g.Wait()
			return WrapExitError(ExitCommandError, "failed to connect relay", err)
		}
		defer client.Close()
		r := relay.New(client, st.Hub(),
			relay.WithChannel(cfg.Relay.Channel),
			relay.WithLogger(logger),
		)
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	if cfg.Debug.Addr != "" {
		srv := debugserver.New(eng, reg, logger)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.Debug.Addr)
		})
	}

	if err := eng.Submit(engine.LoadCity(cfg.City)); err != nil {
		cancel()
		_ = g.Wait()
		return WrapExitError(ExitFailure, "engine error", err)
	}

	in := opts.In
	if in == nil {
		in = cmd.InOrStdin()
	}
	lines := readLines(in)

	g.Go(func() error {
		defer cancel()
		return commandLoop(gctx, eng, lines, formatter)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "client error", err)
	}

	logger.Info("client stopped")
	return nil
}

// readLines scans r on its own goroutine, which outlives a cancelled run
// while blocked in Read. The channel closes at EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// commandLoop executes input lines until quit, EOF or cancellation.
func commandLoop(ctx context.Context, eng *engine.Engine, lines <-chan string, f *OutputFormatter) error {
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		c, err := parseCommand(line)
		if err != nil {
			if werr := f.Problem(err); werr != nil {
				return fmt.Errorf("write problem: %w", werr)
			}
			continue
		}

		switch c.Kind {
		case cmdQuit:
			return nil
		case cmdHelp:
			fmt.Fprintln(f.Writer, replHelp)
		case cmdShow:
			if err := f.View(eng.Snapshot()); err != nil {
				return fmt.Errorf("write view: %w", err)
			}
		case cmdIntent:
			if err := eng.Submit(c.Intent); err != nil {
				return err
			}
		}
	}
}

// lockedWriter serializes writes from the command loop and the engine's
// error hook.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
