package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/logger"
	"github.com/rileyhilliard/upsmon/internal/ui"
	"github.com/rileyhilliard/upsmon/pkg/sshutil"
	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "upsmon",
	Short: "Watch a UPS through its SSH console",
	Long: `upsmon logs into the network management card of a UPS over SSH, polls
its status on a fixed cadence and raises a ramp-down signal when AC input
power has been missing for several polls in a row.

With no subcommand, upsmon opens the dashboard when attached to a terminal
and runs headless otherwise.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			ui.DisableColors()
		}
		sshutil.WarningHandler = func(msg string) {
			logger.Named("ssh").Warn("%s", msg)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if isTerminal(int(os.Stdout.Fd())) {
			return monitorCommand(cmd.Context())
		}
		return runCommand(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./upsmon.yaml, then ~/.config/upsmon/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and exits with a non-zero status on failure.
func Execute() {
	err := rootCmd.Execute()
	sshutil.CloseAgent()
	if err == nil {
		return
	}

	if code, ok := errors.GetExitCode(err); ok {
		os.Exit(code)
	}

	fmt.Fprintln(os.Stderr, err)
	if isUnknownCommandError(err) {
		fmt.Fprintln(os.Stderr, "\nRun 'upsmon --help' to see the available commands.")
	}
	os.Exit(1)
}

// isUnknownCommandError reports whether cobra rejected the command line itself.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag")
}
