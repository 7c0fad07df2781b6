// Package cli is the command-line view of the client: one cobra command per
// user-facing operation, all sharing the App built from the configuration.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/snippethub/internal/app"
	"github.com/sakif/snippethub/internal/config"
)

// RootOptions holds the global flags and the lazily built App.
type RootOptions struct {
	EnvFile string
	Format  string // "text" | "json"
	Verbose bool

	app *app.App
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snippethub",
		Short: "snippethub - share snippets, ask questions",
		Long: `Command-line client for the snippethub community.

Browse and post code snippets, like or dislike them, follow their
comment threads live, ask and answer questions and look at user
statistics. The session survives between runs.

Configuration comes from SNIPPETHUB_* environment variables or a .env
file; see "snippethub config".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", config.DefaultEnvFile, "dotenv file to read (empty to skip)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging and full error messages")

	cmd.AddCommand(newSnippetsCommand(opts))
	cmd.AddCommand(newQuestionsCommand(opts))
	cmd.AddCommand(newUsersCommand(opts))
	cmd.AddCommand(newMeCommand(opts))
	cmd.AddCommand(newAccountCommand(opts))
	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newLogoutCommand(opts))
	cmd.AddCommand(newRegisterCommand(opts))
	cmd.AddCommand(newCommentsCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))

	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if cerr := opts.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", describe(err, opts.Verbose))
		return GetExitCode(err)
	}
	return ExitSuccess
}

// open builds the App on first use and restores the saved session. Logs go
// to stderr so they never mix with command output.
func (o *RootOptions) open(cmd *cobra.Command) (*app.App, error) {
	if o.app != nil {
		return o.app, nil
	}

	cfg, err := config.Load(o.EnvFile)
	if err != nil {
		return nil, WrapExitError(ExitUsage, "invalid configuration", err)
	}
	level := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, _, err := a.Restore(cmd.Context()); err != nil {
		logger.Warn("could not restore session", slog.String("error", err.Error()))
	}
	o.app = a
	return a, nil
}

func (o *RootOptions) close() error {
	if o.app == nil {
		return nil
	}
	err := o.app.Close()
	o.app = nil
	return err
}

func (o *RootOptions) printer(cmd *cobra.Command) printer {
	return printer{json: o.Format == "json", w: cmd.OutOrStdout()}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func newConfigCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.EnvFile)
			if err != nil {
				return WrapExitError(ExitUsage, "invalid configuration", err)
			}
			return opts.printer(cmd).print(cfg, func(w io.Writer) { fmt.Fprint(w, cfg.String()) })
		},
	}
}
