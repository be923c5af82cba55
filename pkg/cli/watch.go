package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var watchFlags struct {
	count   int
	timeout time.Duration
}

var watchCmd = &cobra.Command{
	Use:   "watch <clientId>",
	Short: "Stream request events for a client",
	Long: `Subscribe to a client's event stream and print every exchange live.

Each intercepted request produces a REQUEST_START event when it is decided
and a REQUEST_END event when the response is written.`,
	Example: `  # Watch all traffic for a client
  moxy watch my-client

  # Stop after 10 events
  moxy watch my-client -n 10

  # Print raw event JSON, one object per line
  moxy watch my-client --json`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().IntVarP(&watchFlags.count, "count", "n", 0, "Number of events to receive (0 = unlimited)")
	watchCmd.Flags().DurationVarP(&watchFlags.timeout, "timeout", "t", 30*time.Second, "Connection timeout")
}

func runWatch(cmd *cobra.Command, args []string) error {
	clientID := args[0]

	wsURL, err := eventsURL(adminURL, clientID)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: watchFlags.timeout,
	}

	fmt.Fprintf(os.Stderr, "Connecting to %s...\n", wsURL)
	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connection failed: %v (HTTP %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("connection failed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	fmt.Fprintf(os.Stderr, "Watching events for client %s (Ctrl+C to stop)\n", clientID)

	// Close the subscription cleanly on Ctrl+C; the server sees a normal
	// closure and the read loop below unblocks with a close error.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	interrupted := make(chan struct{})
	go func() {
		<-sigChan
		close(interrupted)
		fmt.Fprintln(os.Stderr, "\nDisconnecting...")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}()

	received := 0
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-interrupted:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fmt.Fprintln(os.Stderr, "Connection closed by server")
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}

		if jsonOutput {
			fmt.Println(string(message))
		} else {
			fmt.Println(formatEventLine(message))
		}

		received++
		if watchFlags.count > 0 && received >= watchFlags.count {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	}
}

// eventsURL derives the websocket event stream URL from the admin base URL.
func eventsURL(base, clientID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid admin URL %q: %w", base, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid admin URL %q: unsupported scheme %q", base, u.Scheme)
	}

	u.Path = "/api/events"
	u.RawQuery = url.Values{"clientId": {clientID}}.Encode()
	return u.String(), nil
}

// formatEventLine renders one event as a human-readable line.
func formatEventLine(message []byte) string {
	var ev struct {
		Topic   string `json:"topic"`
		Payload struct {
			IsMock   bool   `json:"isMock"`
			Method   string `json:"method"`
			Host     string `json:"host"`
			Pathname string `json:"pathname"`
			Status   int    `json:"status"`
			Timecost int64  `json:"timecost"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(message, &ev); err != nil {
		return string(message)
	}

	stamp := time.Now().Format("15:04:05")
	switch ev.Topic {
	case "REQUEST_START":
		line := fmt.Sprintf("[%s] REQUEST_START  %s %s%s", stamp, ev.Payload.Method, ev.Payload.Host, ev.Payload.Pathname)
		if ev.Payload.IsMock {
			line += " (mock)"
		}
		return line
	case "REQUEST_END":
		return fmt.Sprintf("[%s] REQUEST_END    %d %dms", stamp, ev.Payload.Status, ev.Payload.Timecost)
	default:
		return fmt.Sprintf("[%s] %s %s", stamp, ev.Topic, string(message))
	}
}
