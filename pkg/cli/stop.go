package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var stopFlags struct {
	pidFile string
	force   bool
	timeout int
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running moxy server",
	Long: `Stop the moxy server recorded in the PID file.

Sends a graceful shutdown signal and waits for the process to exit. Use
--force to kill it outright when it will not stop.`,
	Example: `  # Stop the server
  moxy stop

  # Force stop
  moxy stop --force

  # Stop with a custom PID file
  moxy stop --pid-file /tmp/moxy.pid`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)

	stopCmd.Flags().StringVar(&stopFlags.pidFile, "pid-file", "", "Path to PID file (default: ~/.moxy/moxy.pid)")
	stopCmd.Flags().BoolVarP(&stopFlags.force, "force", "f", false, "Kill the process instead of signalling graceful shutdown")
	stopCmd.Flags().IntVar(&stopFlags.timeout, "timeout", 10, "Seconds to wait for graceful shutdown")
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := stopFlags.pidFile
	if pidPath == "" {
		pidPath = DefaultPIDPath()
	}

	info, err := ReadPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("moxy is not running (no PID file found at %s)", pidPath)
	}

	if !info.IsRunning() {
		// Stale PID file - clean it up
		_ = RemovePIDFile(pidPath)
		return errors.New("moxy is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(info.PID)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", info.PID, err)
	}

	sig := signalTerm
	sigName := signalTermName()
	if stopFlags.force {
		sig = signalKill
		sigName = signalKillName()
	}

	fmt.Printf("Stopping moxy (PID %d) with %s... ", info.PID, sigName)

	if err := process.Signal(sig); err != nil {
		fmt.Println("failed")
		return fmt.Errorf("failed to send signal: %w", err)
	}

	// For a kill we don't wait gracefully
	if stopFlags.force {
		fmt.Println("done")
		time.Sleep(100 * time.Millisecond)
		_ = RemovePIDFile(pidPath)
		return nil
	}

	deadline := time.Now().Add(time.Duration(stopFlags.timeout) * time.Second)
	for time.Now().Before(deadline) {
		if !checkProcessRunning(info.PID) {
			fmt.Println("done")
			_ = RemovePIDFile(pidPath)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("timeout")
	fmt.Printf("\nProcess did not stop within %d seconds.\n", stopFlags.timeout)
	fmt.Println("Try: moxy stop --force")
	return errors.New("timeout waiting for process to stop")
}
