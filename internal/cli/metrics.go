package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jvs-project/syncbridge/pkg/metrics"
)

var metricsAddr string

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Start Prometheus metrics server",
	Long: `Start a Prometheus metrics server exposing /metrics.

The process-wide registry counts runtime inits and releases, session opens
and closes, step results and synchronize durations. The server runs in the
foreground until interrupted.

Examples:
  syncbridge metrics                 # listen on metrics.addr (default :2112)
  syncbridge metrics --addr :9090    # listen on a custom port`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := metricsAddr
		if addr == "" {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			addr = cfg.Metrics.Addr
		}

		fmt.Printf("Metrics available at http://%s/metrics\n", addr)
		fmt.Println("Press Ctrl+C to stop")
		if err := metrics.StartServer(addr, metrics.Default()); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	},
}

func init() {
	metricsCmd.Flags().StringVarP(&metricsAddr, "addr", "a", "", "address to listen on (default: metrics.addr)")
	rootCmd.AddCommand(metricsCmd)
}
