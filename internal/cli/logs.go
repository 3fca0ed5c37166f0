package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgden/pgden/internal/config"
	"github.com/pgden/pgden/internal/instance"
	"github.com/pgden/pgden/internal/supervisor"
)

// LogsOptions holds flags for the logs command.
type LogsOptions struct {
	Name   string
	Lines  int
	Follow bool
}

// NewLogsCommand creates the logs command.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogsOptions{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print or follow an instance's server log",
		Long: `Print the newest server log of an instance. With --follow the log is
streamed as the server writes it, until interrupted. Following performs
no registry writes, so it never blocks other commands.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", config.DefaultName, "instance name")
	cmd.Flags().IntVarP(&opts.Lines, "lines", "n", 0, "print only the last N lines")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "keep streaming new log output")

	return cmd
}

func runLogs(rootOpts *RootOptions, opts *LogsOptions, cmd *cobra.Command) error {
	name, err := instance.CanonicalName(opts.Name)
	if err != nil {
		return NewExitError(ExitUsage, err.Error())
	}

	sup, closeFn, err := supervisorFactory()
	if err != nil {
		return err
	}
	defer closeFn()

	inst, err := sup.Info(cmd.Context(), name)
	if err != nil {
		return err
	}
	if inst == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("instance '%s' does not exist", name))
	}

	logPath, err := supervisor.LogPath(inst.DataDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Follow {
		fmt.Fprintf(out, "Following logs for instance '%s' (Ctrl+C to exit):\n", name)
		fmt.Fprintf(out, "Log file: %s\n", logPath)

		ctx, cancel := interruptContext(cmd)
		defer cancel()
		return supervisor.Follow(ctx, out, logPath, supervisor.DefaultFollowPoll)
	}

	fmt.Fprintf(out, "Logs for instance '%s' (%s):\n", name, logPath)
	lines, err := supervisor.TailLines(logPath, opts.Lines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}
