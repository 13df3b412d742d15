package cli

import (
	"encoding/json"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

// Set from main, which gets them through ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	versionShort bool
	versionJSON  bool
)

// buildInfo describes this binary. The API reports the same version string.
type buildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Built   string `json:"built"`
	Go      string `json:"go"`
	OSArch  string `json:"os_arch"`
}

func currentBuild() buildInfo {
	return buildInfo{
		Version: displayVersion(version),
		Commit:  commit,
		Built:   date,
		Go:      runtime.Version(),
		OSArch:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash and build date of upsmon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionShort {
			cmd.Println(version)
			return nil
		}

		info := currentBuild()
		if versionJSON {
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		}

		cmd.Printf("upsmon %s\n", info.Version)
		cmd.Printf("commit: %s\nbuilt: %s\ngo: %s\nos/arch: %s\n", info.Commit, info.Built, info.Go, info.OSArch)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version number")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print build information as JSON")
}

// displayVersion prefixes release versions with a v. Local builds stay "dev".
func displayVersion(v string) string {
	if v == "" || v == "dev" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// SetVersionInfo is called from main with the ldflags values.
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}
