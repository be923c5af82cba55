package cli

import (
	"errors"
	"fmt"

	"github.com/getmoxy/moxy/pkg/cli/internal/output"
	"github.com/getmoxy/moxy/pkg/requestlog"
	"github.com/spf13/cobra"
)

var historyFlags struct {
	limit int
	clear bool
}

var historyCmd = &cobra.Command{
	Use:   "history <clientId>",
	Short: "Show recent exchanges for a client",
	Long: `Show the exchanges a running moxy server recorded for a client,
newest first. Each entry notes whether a rule answered the request or it
was forwarded upstream.`,
	Example: `  # Show the last 20 exchanges
  moxy history my-client

  # Show more
  moxy history my-client --limit 100

  # Discard the recorded history
  moxy history my-client --clear`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "Number of entries to show")
	historyCmd.Flags().BoolVar(&historyFlags.clear, "clear", false, "Discard the client's history")
}

func runHistory(cmd *cobra.Command, args []string) error {
	clientID := args[0]
	client := NewAdminClient(adminURL)

	if historyFlags.clear {
		if err := client.ClearHistory(clientID); err != nil {
			return errors.New(FormatConnectionError(err))
		}
		fmt.Printf("Cleared history for client %s\n", clientID)
		return nil
	}

	entries, err := client.GetHistory(clientID, historyFlags.limit)
	if err != nil {
		return errors.New(FormatConnectionError(err))
	}

	return printResult(entries, func() {
		if len(entries) == 0 {
			fmt.Printf("No history for client %s\n", clientID)
			return
		}

		printHistoryTable(entries)
	})
}

// printHistoryTable renders history entries as an aligned table.
func printHistoryTable(entries []*requestlog.Entry) {
	w := output.Table()
	_, _ = fmt.Fprintln(w, "TIMESTAMP\tMETHOD\tHOST\tPATH\tHANDLED\tSTATUS\tDURATION")

	for _, e := range entries {
		timestamp := e.Timestamp.Format("2006-01-02 15:04:05")

		path := e.Pathname
		if len(path) > 25 {
			path = path[:22] + "..."
		}

		handled := "forward"
		if e.IsMock {
			handled = fmt.Sprintf("rule %d", e.RuleIndex)
		}

		status := fmt.Sprintf("%d", e.Status)
		if e.Error != "" {
			status += "!"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%dms\n",
			timestamp, e.Method, e.Host, path, handled, status, e.TimecostMs)
	}

	_ = w.Flush()
}
