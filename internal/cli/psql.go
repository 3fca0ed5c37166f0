package cli

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/pgden/pgden/internal/config"
	"github.com/pgden/pgden/internal/instance"
)

// PsqlOptions holds flags for the psql command.
type PsqlOptions struct {
	Name    string
	Command string
	File    string
}

// NewPsqlCommand creates the psql command.
func NewPsqlCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PsqlOptions{}

	cmd := &cobra.Command{
		Use:   "psql [-- psql-args...]",
		Short: "Open a psql session against a running instance",
		Long: `Run the bundled psql client connected to a running instance. Extra
arguments after -- are passed to psql verbatim, and its exit code
becomes this command's exit code.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPsql(rootOpts, opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", config.DefaultName, "instance name")
	cmd.Flags().StringVarP(&opts.Command, "command", "c", "", "run a single SQL command and exit")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "execute commands from a file and exit")

	return cmd
}

func runPsql(rootOpts *RootOptions, opts *PsqlOptions, extra []string, cmd *cobra.Command) error {
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
		return instance.NewNotRunning(name, "instance does not exist")
	}
	if !inst.Running() {
		return instance.NewNotRunning(name, "instance is not running")
	}

	psqlBin, err := sup.PsqlPath(cmd.Context(), inst)
	if err != nil {
		return err
	}

	args := []string{inst.URI()}
	if opts.Command != "" {
		args = append(args, "-c", opts.Command)
	}
	if opts.File != "" {
		args = append(args, "-f", opts.File)
	}
	args = append(args, extra...)

	client := exec.Command(psqlBin, args...)
	client.Stdin = cmd.InOrStdin()
	client.Stdout = cmd.OutOrStdout()
	client.Stderr = cmd.ErrOrStderr()

	if err := client.Run(); err != nil {
		// The client already reported its own failure; just carry the code.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("run psql: %w", err)
	}
	return nil
}
