package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pgden/pgden/internal/config"
	"github.com/pgden/pgden/internal/instance"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	Name   string
	Format string
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{}

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the state of an instance",
		Long: `Show an instance's effective state and connection details. Statuses are
reconciled against the live process table, so a crashed server is
reported as such even if it died a second ago. Asking about an unknown
instance is not an error.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", config.DefaultName, "instance name")
	addOutputFlag(cmd, &opts.Format)

	return cmd
}

func runInfo(rootOpts *RootOptions, opts *InfoOptions, cmd *cobra.Command) error {
	if err := checkFormat(opts.Format); err != nil {
		return err
	}

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

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, instance.BuildInfo(name, inst))
	}
	printInfo(out, name, inst)
	return nil
}

func printInfo(w io.Writer, name string, inst *instance.Instance) {
	if inst == nil {
		fmt.Fprintf(w, "PostgreSQL instance '%s' does not exist\n", name)
		return
	}

	switch inst.Status {
	case instance.StatusRunning:
		fmt.Fprintf(w, "PostgreSQL instance '%s' is running\n", name)
	case instance.StatusCrashed:
		fmt.Fprintf(w, "PostgreSQL instance '%s' has crashed\n", name)
	default:
		fmt.Fprintf(w, "PostgreSQL instance '%s' is stopped\n", name)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Port:     %d\n", inst.Port)
	fmt.Fprintf(w, "  Username: %s\n", inst.Username)
	fmt.Fprintf(w, "  Database: %s\n", inst.Database)
	fmt.Fprintf(w, "  Data dir: %s\n", inst.DataDir)
	if inst.Version != "" {
		fmt.Fprintf(w, "  Version:  %s\n", inst.Version)
	}
	if inst.Running() {
		fmt.Fprintf(w, "  PID:      %d\n", inst.PID)
		fmt.Fprintf(w, "  URI:      %s\n", inst.URI())
	}
}
