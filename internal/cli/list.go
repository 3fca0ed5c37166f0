package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pgden/pgden/internal/instance"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all instances",
		Long: `List every instance this machine knows about. Statuses are reconciled
against the live process table before printing.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, format, cmd)
		},
	}

	addOutputFlag(cmd, &format)

	return cmd
}

func runList(rootOpts *RootOptions, format string, cmd *cobra.Command) error {
	if err := checkFormat(format); err != nil {
		return err
	}

	sup, closeFn, err := supervisorFactory()
	if err != nil {
		return err
	}
	defer closeFn()

	insts, err := sup.List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		infos := make([]instance.Info, 0, len(insts))
		for _, inst := range insts {
			infos = append(infos, instance.BuildInfo(inst.Name, inst))
		}
		return writeJSON(out, infos)
	}
	printList(out, insts)
	return nil
}

func printList(w io.Writer, insts []*instance.Instance) {
	if len(insts) == 0 {
		fmt.Fprintln(w, "No instances found.")
		return
	}

	fmt.Fprintln(w, "Instances:")
	for _, inst := range insts {
		if inst.Running() {
			fmt.Fprintf(w, "  %s (%s) - port %d - %s\n", inst.Name, inst.Status, inst.Port, inst.URI())
		} else {
			fmt.Fprintf(w, "  %s (%s) - %s\n", inst.Name, inst.Status, inst.DataDir)
		}
	}
}
