// Package cli provides the command-line interface for marathon-cloud.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/marathonlabs/marathon-cloud/internal/api"
	"github.com/marathonlabs/marathon-cloud/internal/cli/commands"
	"github.com/marathonlabs/marathon-cloud/internal/cli/config"
	"github.com/marathonlabs/marathon-cloud/internal/cli/output"
	"github.com/spf13/cobra"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "marathon-cloud",
		Short: "Marathon Cloud command-line interface",
		Long: `marathon-cloud uploads application bundles to Marathon Cloud, runs their
tests, waits for the results and downloads the produced artifacts.`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), cfg)
			ctx := config.WithConfig(cmd.Context(), cfg)
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", "path", configFile)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./marathon-cloud.yaml)")
	pf.String("api-key", "", "Marathon Cloud API key (env MARATHON_CLOUD_API_KEY)")
	pf.String("base-url", config.DefaultBaseURL, "Base url for Marathon Cloud API")
	pf.String("api-version", config.DefaultAPIVersion, "Upload API version (v1|v2)")
	pf.Int("concurrency", 0, "Parallel uploads, listings and downloads (default: number of CPUs)")
	pf.Int("attempts", config.DefaultDownloadAttempts, "Download attempts per artifact")
	pf.Duration("retry-delay", 0, "Delay between download attempts")
	pf.Duration("poll-interval", config.DefaultPollInterval, "Delay between run status requests")
	pf.Duration("max-wait", 0, "Give up waiting for a run after this long (0 waits forever)")
	pf.StringP("format", "f", config.DefaultFormat, "Output format (auto|standard|plain|json|yaml)")
	pf.Bool("no-progress-bars", false, "Disable animated progress bars")
	pf.CountP("verbose", "v", "Verbose logging, repeat for more detail")
	pf.String("log-format", config.DefaultLogFormat, "Log format on stderr (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.Formats, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("api-version", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"v1", "v2"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewDownloadCommand())
	rootCmd.AddCommand(commands.NewDevicesCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// printError reports err on w. A failed test run has already been
// summarized and prints nothing.
func printError(w io.Writer, err error) {
	if errors.Is(err, commands.ErrTestRunFailed) {
		return
	}
	r := output.NewRenderer(w, w, output.ModeAuto)
	r.Error(err.Error())
	if api.IsUnauthorized(err) {
		r.Muted("Hint: check that your API key is valid (--api-key or MARATHON_CLOUD_API_KEY)")
	}
}

// newLogger builds the stderr logger. Info is the default level; any -v
// enables debug output.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose > 0 {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for marathon-cloud.

Bash:
  $ source <(marathon-cloud completion bash)

Zsh:
  $ marathon-cloud completion zsh > "${fpath[1]}/_marathon-cloud"

Fish:
  $ marathon-cloud completion fish > ~/.config/fish/completions/marathon-cloud.fish

PowerShell:
  PS> marathon-cloud completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
