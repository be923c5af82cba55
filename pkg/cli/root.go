package cli

import (
	"fmt"
	"os"

	"github.com/getmoxy/moxy/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Persistent flags available to all subcommands
	adminURL   string
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// SetBuildInfo injects build-time version metadata from main.
func SetBuildInfo(version, commit, date string) {
	if version != "" {
		Version = version
	}
	if commit != "" {
		Commit = commit
	}
	if date != "" {
		BuildDate = date
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "moxy",
	Short: "moxy is a per-client HTTP interception proxy",
	Long: `moxy intercepts HTTP calls routed through its rewrite endpoint and answers
them from per-client rule lists: mock responses, artificial latency, or
transparent forwarding to the real upstream. Every exchange is published to
the client's event stream so a developer can watch traffic live.

Rules are managed over the admin API, which shares the proxy's listen port.
By default moxy listens on port 4280.`,
	// No Run function here means 'moxy' with no args will print help text by default.
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

// Execute runs the root command and exits non-zero on error.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Run executes the CLI with explicit arguments. main's command registry and
// the tests dispatch through here instead of os.Args.
func Run(args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// defaultAdminURL resolves the admin API base URL from the environment,
// falling back to the default listen port on localhost.
func defaultAdminURL() string {
	if v := os.Getenv(config.EnvAdminURL); v != "" {
		return v
	}
	return fmt.Sprintf("http://localhost:%d", config.DefaultPort)
}

func init() {
	// Define persistent flags that apply globally to all moxy commands
	rootCmd.PersistentFlags().StringVar(&adminURL, "admin-url", defaultAdminURL(), "Admin API base URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}
