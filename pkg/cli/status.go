package cli

import (
	"fmt"
	"time"

	"github.com/getmoxy/moxy/pkg/cli/internal/output"
	"github.com/spf13/cobra"
)

// StatusOutput represents the JSON output format for status.
type StatusOutput struct {
	Running bool         `json:"running"`
	PID     int          `json:"pid,omitempty"`
	Version string       `json:"version,omitempty"`
	Commit  string       `json:"commit,omitempty"`
	Uptime  string       `json:"uptime,omitempty"`
	URL     string       `json:"url,omitempty"`
	Stats   *StatusStats `json:"stats,omitempty"`
}

// StatusStats contains live statistics fetched from the admin API.
type StatusStats struct {
	Clients          int   `json:"clients"`
	Rules            int   `json:"rules"`
	History          int   `json:"history"`
	EventConnections int   `json:"eventConnections"`
	EventsSent       int64 `json:"eventsSent"`
}

var statusPIDFile string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of the running moxy server",
	Example: `  # Check server status
  moxy status

  # Output as JSON
  moxy status --json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusPIDFile, "pid-file", "", "Path to PID file (default: ~/.moxy/moxy.pid)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidPath := statusPIDFile
	if pidPath == "" {
		pidPath = DefaultPIDPath()
	}

	info, err := ReadPIDFile(pidPath)
	if err != nil {
		// PID file doesn't exist or is invalid
		return printNotRunning()
	}

	if !info.IsRunning() {
		// Stale PID file - process is not running
		return printNotRunning()
	}

	out := buildStatusOutput(info)
	out.Stats = fetchLiveStats(info.ServerURL())

	return printResult(out, func() {
		printHumanStatus(out)
	})
}

// printNotRunning prints the "not running" status.
func printNotRunning() error {
	return printResult(StatusOutput{Running: false}, func() {
		fmt.Println("moxy is not running")
		fmt.Println()
		fmt.Println("To start: moxy start")
	})
}

// buildStatusOutput creates a StatusOutput from PID file info.
func buildStatusOutput(info *PIDFile) StatusOutput {
	return StatusOutput{
		Running: true,
		PID:     info.PID,
		Version: info.Version,
		Commit:  info.Commit,
		Uptime:  info.FormatUptime(),
		URL:     info.ServerURL(),
	}
}

// fetchLiveStats fetches live statistics from the admin API.
// A server that cannot be reached yields nil, not an error: the process
// exists either way and status should still report it.
func fetchLiveStats(serverURL string) *StatusStats {
	if serverURL == "" {
		return nil
	}

	client := NewAdminClient(serverURL, WithTimeout(2*time.Second))
	st, err := client.Status()
	if err != nil {
		return nil
	}

	stats := &StatusStats{
		Clients: st.Clients,
		Rules:   st.Rules,
		History: st.History,
	}
	if st.Events != nil {
		stats.EventConnections = st.Events.Connections
		stats.EventsSent = st.Events.EventsSent
	}
	return stats
}

// printHumanStatus prints status in human-readable format.
func printHumanStatus(out StatusOutput) {
	if out.Commit != "" && out.Commit != "none" {
		fmt.Printf("moxy v%s (%s)\n", out.Version, out.Commit)
	} else {
		fmt.Printf("moxy v%s\n", out.Version)
	}
	fmt.Println()

	fmt.Printf("Status:  running (PID %d)\n", out.PID)
	fmt.Printf("Uptime:  %s\n", out.Uptime)
	fmt.Printf("URL:     %s\n", out.URL)

	if out.Stats != nil {
		fmt.Println()
		w := output.Table()
		_, _ = fmt.Fprintf(w, "Clients:\t%d\n", out.Stats.Clients)
		_, _ = fmt.Fprintf(w, "Rules:\t%d\n", out.Stats.Rules)
		_, _ = fmt.Fprintf(w, "History entries:\t%d\n", out.Stats.History)
		_, _ = fmt.Fprintf(w, "Event connections:\t%d\n", out.Stats.EventConnections)
		_, _ = fmt.Fprintf(w, "Events sent:\t%d\n", out.Stats.EventsSent)
		_ = w.Flush()
	}
}
