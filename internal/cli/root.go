package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/brandquest/internal/config"
	"github.com/roach88/brandquest/internal/engine"
	"github.com/roach88/brandquest/internal/logging"
	"github.com/roach88/brandquest/internal/phase"
	"github.com/roach88/brandquest/internal/syncer"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Debug      bool
	Format     string // "json" | "text"
	ConfigPath string
	EnvFile    string

	// Config is resolved before any subcommand runs.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the brandquest CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Failures are reported on stderr, or as a JSON error response on stdout
// when --format json is set.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	f := &OutputFormatter{Format: opts.Format, Writer: stderr, Verbose: opts.Verbose}
	if f.JSON() {
		f.Writer = stdout
	}
	if ferr := f.Error(errorCode(err), err.Error(), nil); ferr != nil {
		fmt.Fprintln(stderr, err)
	}
	return GetExitCode(err)
}

// errorCode classifies err for error responses.
func errorCode(err error) string {
	var rerr *engine.RuntimeError
	switch {
	case errors.As(err, &rerr):
		return string(rerr.Code)
	case syncer.IsPersistenceError(err):
		return "PERSISTENCE_FAILED"
	case phase.IsValidation(err):
		return "INVALID_INPUT"
	case GetExitCode(err) == ExitCommandError:
		return "COMMAND_ERROR"
	}
	return "FAILED"
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "brandquest",
		Short:         "brandquest - guided brand strategy missions",
		Long:          "Play brand strategy missions in order, with progress kept in sync across devices.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			logging.Init(opts.Debug)
			if err := config.LoadDotEnv(opts.EnvFile); err != nil {
				return WrapExitError(ExitCommandError, "failed to load env file", err)
			}

			v := viper.New()
			flags := cmd.Root().PersistentFlags()
			if err := v.BindPFlag("database", flags.Lookup("db")); err != nil {
				return err
			}
			if err := v.BindPFlag("record_id", flags.Lookup("record")); err != nil {
				return err
			}
			cfg, err := config.Load(v, opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			opts.Config = cfg
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&opts.Debug, "debug", false, "debug logging")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (json or yaml)")
	flags.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the config")
	flags.String("db", "", "SQLite database path (overrides config)")
	flags.String("record", "", "brand record id (overrides config)")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewPlayCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd, opts
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
