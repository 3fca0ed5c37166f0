package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pgden/pgden/internal/config"
	"github.com/pgden/pgden/internal/install"
	"github.com/pgden/pgden/internal/instance"
	"github.com/pgden/pgden/internal/supervisor"
)

// StartOptions holds flags for the start command.
type StartOptions struct {
	Name     string
	Port     int
	Version  string
	DataDir  string
	Username string
	Password string
	Database string
	Configs  []string
}

// NewStartCommand creates the start command.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StartOptions{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a PostgreSQL instance, creating it on first use",
		Long: `Start a PostgreSQL instance. The first start of a name bootstraps its
data directory and provisions the requested role and database; later
starts reuse them. The command returns once the server accepts
connections and leaves it running in the background.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - main handles them once
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", config.DefaultName, "instance name")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", config.DefaultPort, "port to listen on")
	cmd.Flags().StringVarP(&opts.Version, "version", "V", install.DefaultVersion, "engine version to run")
	cmd.Flags().StringVarP(&opts.DataDir, "data-dir", "d", "", "data directory (default <home>/instances/<name>/data)")
	cmd.Flags().StringVarP(&opts.Username, "username", "u", config.DefaultUsername, "application username")
	cmd.Flags().StringVarP(&opts.Password, "password", "P", config.DefaultPassword, "application password")
	cmd.Flags().StringVarP(&opts.Database, "database", "n", config.DefaultDatabase, "database name")
	cmd.Flags().StringArrayVarP(&opts.Configs, "config", "c", nil, "server setting KEY=VALUE (repeatable)")

	return cmd
}

func runStart(rootOpts *RootOptions, opts *StartOptions, cmd *cobra.Command) error {
	home, err := config.Home()
	if err != nil {
		return err
	}
	defaults, err := config.Load(home)
	if err != nil {
		return err
	}

	// Layering: explicit flags > defaults file > built-ins. The flag
	// defaults already carry the built-ins, so only unchanged flags take
	// the file's values.
	flags := cmd.Flags()
	if !flags.Changed("name") && defaults.Name != "" {
		opts.Name = defaults.Name
	}
	if !flags.Changed("port") && defaults.Port != 0 {
		opts.Port = defaults.Port
	}
	if !flags.Changed("version") && defaults.Version != "" {
		opts.Version = defaults.Version
	}
	if !flags.Changed("username") && defaults.Username != "" {
		opts.Username = defaults.Username
	}
	if !flags.Changed("password") && defaults.Password != "" {
		opts.Password = defaults.Password
	}
	if !flags.Changed("database") && defaults.Database != "" {
		opts.Database = defaults.Database
	}

	settings, err := defaults.ParsedSettings()
	if err != nil {
		return err
	}
	// Ad-hoc -c flags come after the file's entries so they win; malformed
	// ones warn and are skipped rather than aborting the start.
	for _, raw := range opts.Configs {
		s, err := instance.ParseSetting(raw)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Invalid config format '%s', expected KEY=VALUE\n", raw)
			continue
		}
		settings = append(settings, s)
	}

	name, err := instance.CanonicalName(opts.Name)
	if err != nil {
		return NewExitError(ExitUsage, err.Error())
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = config.DataDir(home, name)
	} else {
		if dataDir, err = config.ExpandPath(dataDir); err != nil {
			return err
		}
	}

	sup, closeFn, err := supervisorFactory()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := interruptContext(cmd)
	defer cancel()

	res, err := sup.Start(ctx, supervisor.StartRequest{
		Name:             name,
		Port:             opts.Port,
		Version:          opts.Version,
		DataDir:          dataDir,
		Username:         opts.Username,
		Password:         opts.Password,
		Database:         opts.Database,
		Settings:         settings,
		PortExplicit:     flags.Changed("port"),
		VersionExplicit:  flags.Changed("version"),
		DataDirExplicit:  flags.Changed("data-dir"),
		UserExplicit:     flags.Changed("username"),
		PasswordExplicit: flags.Changed("password"),
		DatabaseExplicit: flags.Changed("database"),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, notice := range res.Notices {
		fmt.Fprintln(out, notice)
	}
	printStartSummary(out, res.Instance)
	return nil
}

func printStartSummary(w io.Writer, inst *instance.Instance) {
	fmt.Fprintln(w, "PostgreSQL is running!")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Instance: %s\n", inst.Name)
	fmt.Fprintf(w, "  PID:      %d\n", inst.PID)
	fmt.Fprintf(w, "  Port:     %d\n", inst.Port)
	fmt.Fprintf(w, "  Username: %s\n", inst.Username)
	fmt.Fprintf(w, "  Password: %s\n", inst.Password)
	fmt.Fprintf(w, "  Database: %s\n", inst.Database)
	fmt.Fprintf(w, "  Data dir: %s\n", inst.DataDir)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Connection URI:")
	fmt.Fprintf(w, "  %s\n", inst.URI())
	fmt.Fprintln(w)
	if inst.Name == config.DefaultName {
		fmt.Fprintln(w, "To stop: pgden stop")
	} else {
		fmt.Fprintf(w, "To stop: pgden stop --name %s\n", inst.Name)
	}
}
