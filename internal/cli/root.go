package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pgden/pgden/internal/config"
	"github.com/pgden/pgden/internal/install"
	"github.com/pgden/pgden/internal/registry"
	"github.com/pgden/pgden/internal/supervisor"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command for the pgden CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pgden",
		Short: "Embedded PostgreSQL instances for development",
		Long: `pgden runs one or more isolated PostgreSQL instances on this machine
without a system-wide installation. Each instance has its own data
directory, port and credentials, and keeps running after the command
returns.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(opts.Verbose)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewStopCommand(opts))
	cmd.AddCommand(NewDropCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewLogsCommand(opts))
	cmd.AddCommand(NewPsqlCommand(opts))
	cmd.AddCommand(NewExtensionsCommand(opts))

	return cmd
}

// configureLogging routes diagnostics to stderr so stdout stays reserved
// for command output. Quiet by default; -v opens the firehose.
func configureLogging(verbose bool) {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// supervisorFactory builds the supervisor backing a command invocation.
// Tests swap it to run against a faked process table.
var supervisorFactory = openSupervisor

func openSupervisor() (*supervisor.Supervisor, func() error, error) {
	home, err := config.Home()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, nil, err
	}
	reg, err := registry.Open(config.RegistryPath(home))
	if err != nil {
		return nil, nil, err
	}
	mgr := install.New(home, reg)
	return supervisor.New(reg, mgr, supervisor.Config{Home: home}), reg.Close, nil
}

// interruptContext derives a context canceled by Ctrl-C or SIGTERM.
// Commands with bounded waits (start's health probe, stop's shutdown wait,
// logs --follow) use it so an interrupt aborts the wait instead of the
// whole process.
func interruptContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}
