package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// BuildDate is set at build time.
var BuildDate = "unknown"

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	Verbose bool
	JSON    bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "melisync",
	Short: "melisync - MercadoLivre daily revenue sync",
	Long: `melisync keeps a daily revenue ledger in step with MercadoLivre.

Every interval it rotates each seller account's single-use refresh token,
sums the day's paid orders (fraud-tagged orders excluded) and upserts the
total into the ledger keyed by (empresa, date).

Accounts are discovered from MELI_{NAME}_APP_ID, MELI_{NAME}_SECRET_KEY,
MELI_{NAME}_REFRESH_TOKEN, MELI_{NAME}_USER_ID and ACCOUNT_{NAME}_EMPRESA.

Usage:
  melisync [command] [flags]

Available Commands:
  serve      Run the scheduler and HTTP API (main mode)
  sync       Run one sync cycle and print the results
  accounts   List configured accounts
  tokens     Show persisted refresh token state
  version    Print version information`,
	SilenceUsage: true,
}

var globalFlags GlobalFlags

// InitRoot initializes the root command with global flags
func InitRoot() {
	configPath := os.Getenv("MELISYNC_CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable debug logging")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	RootCmd.AddCommand(versionCmd)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() GlobalFlags {
	return globalFlags
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of melisync",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	BuildDate string `json:"build_date"`
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		BuildDate: BuildDate,
	}
}

func printVersion(w io.Writer) {
	info := GetVersionInfo()
	if globalFlags.JSON {
		_ = writeJSON(w, info)
		return
	}
	fmt.Fprintln(w, "melisync version:", info.Version)
	fmt.Fprintln(w, "Go version:", info.GoVersion)
	fmt.Fprintln(w, "OS/Arch:", info.OS+"/"+info.Arch)
	fmt.Fprintln(w, "Build date:", info.BuildDate)
}
