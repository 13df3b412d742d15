package cli

import (
	"github.com/spf13/cobra"
)

// Command-specific flags
var (
	monitorHostFlag     string
	monitorIntervalFlag string
	runHostFlag         string
	runListenFlag       string
	checkHostFlag       string
	checkJSON           bool
	bridgeDirFlag       string
	initHostFlag        string
	initForce           bool
	initNonInteractive  bool
	initGlobal          bool
	initNoCheck         bool
)

// monitorCmd opens the live dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Open the live UPS dashboard",
	Long: `Connect to the UPS and show its readings in a terminal dashboard.

Keys: s starts polling, p pauses it, q quits, ? shows help.
Log output goes to upsmon.log in the audit directory while the dashboard
owns the terminal.

Examples:
  upsmon monitor
  upsmon monitor --host 10.0.0.5 --interval 10s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return monitorCommand(cmd.Context())
	},
}

// runCmd polls without a user interface
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the UPS headless, as a service",
	Long: `Poll the UPS until interrupted, logging each reading.

SIGINT and SIGTERM stop polling after the SSH session is closed and a final
audit line is written. With http.listen set (or --listen), a status API and
Prometheus metrics are served alongside.

Examples:
  upsmon run
  upsmon run --listen :9105`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd.Context())
	},
}

// checkCmd runs the status command once
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Read the UPS status once and print it",
	Long: `Connect to the UPS, run the status command once and print every field
the reply contained. Exits non-zero when the UPS can't be read.

Examples:
  upsmon check
  upsmon check --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkCommand(cmd.Context(), cmd.OutOrStdout())
	},
}

// bridgeCmd forwards rows from data files to the sink
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Forward the latest data-file row to the sink",
	Long: `Watch a directory of data files and forward the configured integer
columns of the newest file's last row whenever its timestamp changes.

Examples:
  upsmon bridge
  upsmon bridge --dir /data/hv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return bridgeCommand(cmd.Context())
	},
}

// initCmd writes a new config file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file",
	Long: `Create upsmon.yaml in the current directory (or the global config with
--global), asking for the UPS address and sink settings.

Examples:
  upsmon init
  upsmon init --global
  upsmon init --non-interactive --host 10.0.0.5`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Init(InitOptions{
			Host:           initHostFlag,
			Overwrite:      initForce,
			NonInteractive: initNonInteractive,
			Global:         initGlobal,
			SkipCheck:      initNoCheck,
		})
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorHostFlag, "host", "", "UPS address (overrides ups.host)")
	monitorCmd.Flags().StringVar(&monitorIntervalFlag, "interval", "", "poll interval (e.g. 5s, overrides monitor.interval)")

	runCmd.Flags().StringVar(&runHostFlag, "host", "", "UPS address (overrides ups.host)")
	runCmd.Flags().StringVar(&runListenFlag, "listen", "", "serve the status API on this address (overrides http.listen)")

	checkCmd.Flags().StringVar(&checkHostFlag, "host", "", "UPS address (overrides ups.host)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the parsed record as JSON")

	bridgeCmd.Flags().StringVar(&bridgeDirFlag, "dir", "", "data file directory (overrides bridge.dir)")

	initCmd.Flags().StringVar(&initHostFlag, "host", "", "UPS address")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "don't prompt, use flags and defaults")
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "write ~/.config/upsmon/config.yaml")
	initCmd.Flags().BoolVar(&initNoCheck, "no-check", false, "don't test the connection before saving")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(bridgeCmd)
	rootCmd.AddCommand(initCmd)
}
