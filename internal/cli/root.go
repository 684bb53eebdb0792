package cli

import (
	"context"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quilldev/kurisu/internal/appctx"
	"github.com/quilldev/kurisu/internal/commands"
	"github.com/quilldev/kurisu/internal/config"
	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/version"
)

// rootFlags are the persistent flags that feed config.FlagOverrides.
type rootFlags struct {
	appctx.GlobalFlags

	format      string
	cacheDir    string
	platformURL string
	logLevel    string
	metricsAddr string
	dedupe      bool
}

// NewRootCmd creates the root cobra command without subcommands.
func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "kurisu",
		Short: "Champion mastery lookups for chat",
		Long: `kurisu answers champion mastery questions for League of Legends players.

Run "kurisu serve" to start the chat bot, or use the lookup commands
directly from the shell.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for help and version commands
			switch cmd.Name() {
			case "help", "version", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
				return nil
			}
			if cmd.Parent() != nil && cmd.Parent().Name() == "completion" {
				return nil
			}

			overrides := config.FlagOverrides{
				PlatformURL: flags.platformURL,
				CacheDir:    flags.cacheDir,
				Format:      flags.format,
				LogLevel:    flags.logLevel,
				MetricsAddr: flags.metricsAddr,
			}
			if cmd.Flags().Changed("dedupe") {
				overrides.Dedupe = &flags.dedupe
			}

			cfg, err := config.Load(overrides)
			if err != nil {
				return err
			}

			app, err := appctx.NewAppWithIO(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			app.Flags = flags.GlobalFlags
			if err := app.ApplyFlags(); err != nil {
				_ = app.Close(cmd.Context())
				return err
			}

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().StringVar(&flags.JQ, "jq", "", "Filter data with a jq expression")
	cmd.PersistentFlags().StringVar(&flags.format, "format", "", "Output format: auto, json, text or quiet")

	// Upstream and cache flags
	cmd.PersistentFlags().StringVar(&flags.platformURL, "platform-url", "", "Platform API base URL")
	cmd.PersistentFlags().StringVar(&flags.cacheDir, "cache-dir", "", "Cache directory")
	cmd.PersistentFlags().BoolVar(&flags.dedupe, "dedupe", false, "Collapse concurrent identical upstream fetches")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for ops, -vv for requests)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")
	cmd.PersistentFlags().BoolVar(&flags.Trace, "trace", false, "Print OpenTelemetry spans to stderr")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (serve only)")

	return cmd
}

// NewCLI creates the root command with every subcommand attached.
func NewCLI() *cobra.Command {
	cmd := NewRootCmd()

	cmd.AddCommand(commands.NewMasteryCmd())
	cmd.AddCommand(commands.NewSummonerCmd())
	cmd.AddCommand(commands.NewGameVersionCmd())
	cmd.AddCommand(commands.NewBundleCmd())
	cmd.AddCommand(commands.NewPingCmd())
	cmd.AddCommand(commands.NewCommandsCmd())
	cmd.AddCommand(commands.NewServeCmd())
	cmd.AddCommand(commands.NewConfigCmd())
	cmd.AddCommand(commands.NewDoctorCmd())
	cmd.AddCommand(commands.NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits with the error's exit code.
func Execute() {
	cmd := NewCLI()
	os.Exit(run(cmd, os.Args[1:], os.Stdout))
}

// run executes cmd with args and returns the process exit code.
func run(cmd *cobra.Command, args []string, stdout io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)

	// Use ExecuteC to get the executed command (for correct context access)
	executedCmd, err := cmd.ExecuteC()

	app := appctx.FromContext(executedCmd.Context())
	if app != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = app.Close(ctx)
		}()
	}

	if err == nil {
		return 0
	}

	err = transformCobraError(err)
	apiErr := output.AsError(err)

	// Try to use app.Err() if app is available (for --stats support)
	if app != nil {
		_ = app.Err(err)
		return apiErr.ExitCode()
	}

	// Fallback: output error directly (app not available, e.g., during setup)
	pf := cmd.PersistentFlags()
	format := output.FormatAuto
	quiet, _ := pf.GetBool("quiet")
	jsonFlag, _ := pf.GetBool("json")
	switch {
	case quiet:
		format = output.FormatQuiet
	case jsonFlag:
		format = output.FormatJSON
	}

	_ = output.New(output.Options{Format: format, Writer: stdout}).Err(err)
	return apiErr.ExitCode()
}

var shorthandFlagRe = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)

// transformCobraError rewrites cobra's parse errors as usage errors with
// consistent wording.
func transformCobraError(err error) error {
	msg := err.Error()

	if strings.HasPrefix(msg, "flag needs an argument: ") {
		flag := strings.TrimPrefix(msg, "flag needs an argument: ")
		return output.ErrUsage(flag + " requires a value")
	}

	if strings.HasPrefix(msg, "unknown flag: ") {
		flag := strings.TrimPrefix(msg, "unknown flag: ")
		return output.ErrUsage("Unknown option: " + flag)
	}

	if strings.HasPrefix(msg, "unknown shorthand flag: ") {
		if matches := shorthandFlagRe.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage("Unknown option: " + matches[1])
		}
	}

	if strings.HasPrefix(msg, "unknown command ") {
		return output.ErrUsageHint(msg, "Run 'kurisu --help' for usage")
	}

	if strings.Contains(msg, "invalid argument") {
		return output.ErrUsage(msg)
	}

	// "accepts 1 arg(s), received 0"
	if strings.Contains(msg, "arg(s), received 0") {
		return output.ErrUsage("Summoner name required")
	}
	if strings.Contains(msg, "arg(s), received") {
		return output.ErrUsage(msg)
	}

	return err
}
