// Package cli implements the syncbridge command line.
package cli

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/jvs-project/syncbridge/pkg/color"
	"github.com/jvs-project/syncbridge/pkg/errclass"
)

var (
	jsonOutput bool
	configPath string
	noColor    bool
	rootCmd    = &cobra.Command{
		Use:   "syncbridge",
		Short: "syncbridge - version-control synchronization bridge",
		Long: `syncbridge initializes a version-control runtime, opens a client session,
synchronizes the workspace and tears everything down again. The same call
is exported to managed hosts by the libsyncbridge shared library.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $SYNCBRIDGE_CONFIG or the XDG config dir)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command. The process exit code is the status code
// of the failure, so scripts see the same codes as library callers.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmtErr("%v", err)
		os.Exit(int(errclass.StatusOf(err)))
	}
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
