package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgden/pgden/internal/install"
)

// ExtensionsOptions holds flags for the extensions command.
type ExtensionsOptions struct {
	Version string
	Format  string
}

// NewExtensionsCommand creates the extensions command.
func NewExtensionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExtensionsOptions{}

	cmd := &cobra.Command{
		Use:   "extensions",
		Short: "List extensions bundled with an engine version",
		Long: `List the extensions shipped with an engine bundle, as declared by their
control files. Installs the engine first if this machine does not have
it yet.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtensions(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Version, "version", "V", install.DefaultVersion, "engine version")
	addOutputFlag(cmd, &opts.Format)

	return cmd
}

func runExtensions(rootOpts *RootOptions, opts *ExtensionsOptions, cmd *cobra.Command) error {
	if err := checkFormat(opts.Format); err != nil {
		return err
	}

	sup, closeFn, err := supervisorFactory()
	if err != nil {
		return err
	}
	defer closeFn()

	exts, err := sup.Extensions(cmd.Context(), opts.Version)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), exts)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Extensions bundled with PostgreSQL %s:\n\n", opts.Version)
	nameW, verW := len("NAME"), len("VERSION")
	for _, ext := range exts {
		if len(ext.Name) > nameW {
			nameW = len(ext.Name)
		}
		if len(ext.Version) > verW {
			verW = len(ext.Version)
		}
	}
	fmt.Fprintf(out, "  %-*s  %-*s  %s\n", nameW, "NAME", verW, "VERSION", "DESCRIPTION")
	for _, ext := range exts {
		fmt.Fprintf(out, "  %-*s  %-*s  %s\n", nameW, ext.Name, verW, ext.Version, ext.Comment)
	}
	return nil
}
