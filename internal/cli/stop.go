package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgden/pgden/internal/config"
)

// NewStopCommand creates the stop command.
func NewStopCommand(rootOpts *RootOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running PostgreSQL instance",
		Long: `Stop a running PostgreSQL instance. The server gets a fast-shutdown
request and a bounded wait; an unresponsive process is killed. The
instance keeps its data directory and can be started again.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(rootOpts, name, cmd)
		},
	}

	cmd.Flags().StringVar(&name, "name", config.DefaultName, "instance name")

	return cmd
}

func runStop(rootOpts *RootOptions, name string, cmd *cobra.Command) error {
	sup, closeFn, err := supervisorFactory()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := interruptContext(cmd)
	defer cancel()

	inst, err := sup.Stop(ctx, name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Stopping PostgreSQL instance '%s' (pid: %d)...\n", inst.Name, inst.PID)
	fmt.Fprintf(out, "PostgreSQL instance '%s' stopped.\n", inst.Name)
	return nil
}
