package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/easyfire/internal/discovery"
	"github.com/muurk/easyfire/internal/ui"
)

// Discovery command flags
var (
	scanTimeout time.Duration
	bridgeURL   string
	discover    bool
	instance    string
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
}

// scanCmd discovers bridges on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for easyfire bridges on the network",
	Long: `Scan for easyfire bridges using mDNS/DNS-SD discovery.

Every bridge started without --no-advertise announces itself as
_easyfire._tcp. This command lists the bridges that answer within the
timeout together with their WebSocket URL.`,
	Example: `  # Scan for 5 seconds (default)
  easyfire-cli scan

  # Longer scan for slow networks
  easyfire-cli scan --timeout 15s`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "Scan timeout")
}

func runScan(cmd *cobra.Command, args []string) error {
	fmt.Printf("Scanning for easyfire bridges (timeout: %s)...\n\n", scanTimeout)

	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout

	bridges, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	printer := ui.NewPrinter(os.Stdout)
	printer.PrintBridges(bridges)
	if len(bridges) == 0 {
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure easyfire-server is running without --no-advertise")
		fmt.Println("  - Check that multicast traffic is allowed on this network")
		fmt.Println("  - Try increasing --timeout")
		return nil
	}

	fmt.Println("\nUse 'easyfire-cli watch --bridge <url>' to open the dashboard")
	return nil
}

// watchCmd shows the live dashboard
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live dashboard of a bridge's sensors",
	Long: `Connect to a bridge's WebSocket stream and show its sensors in a
terminal dashboard.

The dashboard updates on every decoded frame. Press ? for key bindings and
q to quit.`,
	Example: `  # Watch a local bridge
  easyfire-cli watch

  # Watch a specific bridge
  easyfire-cli watch --bridge ws://192.168.1.20:8080/ws

  # Find the bridge over mDNS first
  easyfire-cli watch --discover --instance boiler-room`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&bridgeURL, "bridge", "ws://localhost:8080/ws", "Bridge WebSocket URL")
	watchCmd.Flags().BoolVar(&discover, "discover", false, "Find the bridge over mDNS instead of using --bridge")
	watchCmd.Flags().StringVar(&instance, "instance", "", "Instance name to look for with --discover (default: any)")
	watchCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "Discovery timeout")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	url := bridgeURL
	if discover {
		b, err := findBridge(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Found %s\n", b)
		url = b.URL()
	}

	return ui.RunDashboard(ctx, url)
}

func findBridge(ctx context.Context) (*discovery.Bridge, error) {
	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout
	b, err := scanner.Find(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	return b, nil
}
