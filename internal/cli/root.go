// Package cli implements the scoreclock command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/scoreclock/internal/config"
	"github.com/roach88/scoreclock/internal/logsink"
)

// configAnnotation marks a flag as an override for a config key.
const configAnnotation = "scoreclock_config_key"

// RootOptions holds global flags and the state PersistentPreRunE builds
// from them.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	LogFormat  string

	// Stderr receives logs. Defaults to os.Stderr.
	Stderr io.Writer

	Config *config.Config
	sink   *logsink.Sink
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{Stderr: os.Stderr}

	cmd := &cobra.Command{
		Use:   "scoreclock",
		Short: "scoreclock - event-sourced rink scoreboard",
		Long: `An event-sourced scoreboard controller for ice rinks.

The device keeps an append-only event log, drives the live clock from it
and pushes every event to one or more destinations. The cloud aggregator
ingests those events idempotently and tracks device liveness.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (json|text)")
	bindConfig(cmd.PersistentFlags(), "log-format", "logging.format")

	cmd.AddCommand(NewDeviceCommand(opts))
	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewCloudCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewDeliveriesCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd, opts
}

// Execute runs the CLI and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	opts.Stderr = stderr
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	opts.Close()
	code := GetExitCode(err)
	switch {
	case err == nil:
	case code == ExitCommandError && opts.Format == "json":
		f := &OutputFormatter{Format: opts.Format, Writer: stdout, Verbose: opts.Verbose}
		_ = f.Error("E_COMMAND", err.Error(), nil)
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

// setup loads configuration, applies flag overrides and installs the
// process logger.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	v, err := config.New(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := bindFlags(v, cmd); err != nil {
		return WrapExitError(ExitCommandError, "failed to bind flags", err)
	}
	cfg, err := config.Unmarshal(v)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	o.Config = cfg

	level := logsink.ParseLevel(cfg.Logging.Level)
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.sink = logsink.New(o.Stderr, logsink.DefaultBuffer)
	slog.SetDefault(slog.New(o.sink.Handler(logsink.Options{Format: cfg.Logging.Format, Level: level})))
	return nil
}

// Close flushes the log sink.
func (o *RootOptions) Close() {
	if o.sink != nil {
		o.sink.Close()
		o.sink = nil
	}
}

// LogWriter returns the sink for forwarding child process output.
func (o *RootOptions) LogWriter() io.Writer {
	if o.sink != nil {
		return o.sink
	}
	return o.Stderr
}

// bindConfig marks a flag as overriding a config key when it is set on
// the command line.
func bindConfig(fs *pflag.FlagSet, name, key string) {
	_ = fs.SetAnnotation(name, configAnnotation, []string{key})
}

// bindFlags binds every annotated flag visible to cmd.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configAnnotation]
		if len(keys) == 0 || err != nil {
			return
		}
		err = v.BindPFlag(keys[0], f)
	})
	return err
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
