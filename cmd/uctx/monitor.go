// Package main implements the live dashboard command for the uctx CLI.
package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ultracontext/internal/monitor"
)

var (
	// monitor command flags
	monitorBus      string
	monitorInterval time.Duration
)

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringVar(&monitorBus, "bus", "", "NATS URL for live events (empty polls health only)")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 2*time.Second, "Health poll interval")
}

// monitorCmd runs the terminal dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard for the daemon",
	Long: `Show a live terminal dashboard of store totals and compression
activity.

With a bus URL the dashboard streams compression and ingest events as
they happen; without one it polls the health endpoint only.

Examples:
  # Poll the daemon
  uctx monitor

  # Stream live events from the daemon's bus
  uctx monitor --bus nats://127.0.0.1:4222`,
	RunE: runMonitor,
}

// runMonitor handles the monitor command
func runMonitor(cmd *cobra.Command, args []string) error {
	return monitor.Run(monitor.Options{
		ServerURL: serverURL,
		BusURL:    monitorBus,
		Interval:  monitorInterval,
	})
}
