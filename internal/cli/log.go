package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/jvs-project/syncbridge/pkg/hostlog"
	"github.com/jvs-project/syncbridge/pkg/logging"
)

var (
	logSubsystem string
	logCategory  string
	logLevel     string
)

// newSink builds the host log sink for the log command.
var newSink = hostlog.HostSink

var logCmd = &cobra.Command{
	Use:   "log <message>...",
	Short: "Write a line to the host log",
	Long: `Write a line to the host log through the same forwarder the shared
library exports. On macOS this is os_log; elsewhere the line is written by
the structured logger on stderr.

Levels: default, info, debug, error, fault.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := hostlog.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger := logging.New(logging.Options{Level: logging.LevelDebug, Format: logging.FormatConsole})
		defer logger.Sync()

		fwd := hostlog.NewForwarder(newSink(logger))
		fwd.Emit(fwd.Category(logSubsystem, logCategory), level, strings.Join(args, " "))
		return nil
	},
}

func init() {
	logCmd.Flags().StringVar(&logSubsystem, "subsystem", hostlog.DefaultSubsystem, "log subsystem")
	logCmd.Flags().StringVar(&logCategory, "category", "cli", "log category")
	logCmd.Flags().StringVarP(&logLevel, "level", "l", "default", "log level")
	rootCmd.AddCommand(logCmd)
}
