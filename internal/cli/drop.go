package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pgden/pgden/internal/config"
	"github.com/pgden/pgden/internal/instance"
)

// DropOptions holds flags for the drop command.
type DropOptions struct {
	Name  string
	Force bool
}

// NewDropCommand creates the drop command.
func NewDropCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DropOptions{}

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Delete an instance and all its data",
		Long: `Delete an instance: stop it if running, remove its data directory and
forget it. This is irreversible, so an interactive session asks for
confirmation unless --force is given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrop(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", config.DefaultName, "instance name")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "skip the confirmation prompt")

	return cmd
}

func runDrop(rootOpts *RootOptions, opts *DropOptions, cmd *cobra.Command) error {
	name, err := instance.CanonicalName(opts.Name)
	if err != nil {
		return NewExitError(ExitUsage, err.Error())
	}

	sup, closeFn, err := supervisorFactory()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := interruptContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()

	if !opts.Force {
		inst, err := sup.Info(ctx, name)
		if err != nil {
			return err
		}
		if inst == nil {
			fmt.Fprintf(out, "Instance '%s' does not exist.\n", name)
			return nil
		}
		confirmed, err := confirmDrop(cmd, name, inst.DataDir)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	dropped, err := sup.Drop(ctx, name)
	if err != nil {
		return err
	}
	if !dropped.Existed {
		fmt.Fprintf(out, "Instance '%s' does not exist.\n", name)
		return nil
	}
	fmt.Fprintf(out, "Instance '%s' dropped.\n", name)
	return nil
}

// confirmDrop asks for interactive confirmation. A piped stdin has nobody
// to ask, so the caller must pass --force; this keeps scripts from hanging
// on an invisible prompt.
func confirmDrop(cmd *cobra.Command, name, dataDir string) (bool, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false, NewExitError(ExitUsage,
			fmt.Sprintf("refusing to drop '%s' without a terminal; pass --force to confirm", name))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "This will permanently delete instance '%s' and all its data:\n", name)
	fmt.Fprintf(out, "  Data dir: %s\n", dataDir)
	fmt.Fprint(out, "Are you sure? [y/N] ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
