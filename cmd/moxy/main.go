// moxy CLI - per-client HTTP interception proxy
package main

import (
	"fmt"
	"os"

	"github.com/getmoxy/moxy/pkg/cli"
)

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Command represents a registered CLI command.
type Command struct {
	Name     string
	Short    string
	Category string
	Run      func(args []string) error
}

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	ordered  []*Command
}

func newRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

func (r *Registry) register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	r.ordered = append(r.ordered, cmd)
}

func (r *Registry) lookup(name string) (*Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

func (r *Registry) isCommand(name string) bool {
	_, ok := r.commands[name]
	return ok
}

// forward dispatches a registry command into the cobra tree.
func forward(name string) func(args []string) error {
	return func(args []string) error {
		return cli.Run(append([]string{name}, args...))
	}
}

// buildRegistry creates the command registry with all CLI commands.
func buildRegistry() *Registry {
	reg := newRegistry()

	// Server
	reg.register(&Command{Name: "start", Short: "Start the moxy server", Category: "Server", Run: forward("start")})
	reg.register(&Command{Name: "stop", Short: "Stop a running moxy server", Category: "Server", Run: forward("stop")})
	reg.register(&Command{Name: "status", Short: "Show the status of the running server", Category: "Server", Run: forward("status")})

	// Rules
	reg.register(&Command{Name: "rules", Short: "Manage per-client rewrite rules", Category: "Rules", Run: forward("rules")})

	// Observability
	reg.register(&Command{Name: "history", Short: "Show recent exchanges for a client", Category: "Observability", Run: forward("history")})
	reg.register(&Command{Name: "watch", Short: "Stream request events for a client", Category: "Observability", Run: forward("watch")})

	// Utilities
	reg.register(&Command{Name: "version", Short: "Show version information", Category: "Utilities", Run: forward("version")})
	reg.register(&Command{Name: "completion", Short: "Generate shell completion scripts", Category: "Utilities", Run: forward("completion")})
	reg.register(&Command{Name: "help", Short: "Show help for a command", Category: "Utilities", Run: forward("help")})

	return reg
}

func main() {
	cli.SetBuildInfo(Version, Commit, BuildDate)

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	reg := buildRegistry()

	command := ""
	var cmdArgs []string

	switch {
	case len(args) == 0:
		printUsage(reg)
		return nil
	case args[0] == "" || args[0][0] == '-':
		first := args[0]
		switch first {
		case "--help", "-h":
			printUsage(reg)
			return nil
		case "--version", "-v":
			return cli.Run([]string{"version"})
		default:
			// Bare flags go to the server command: 'moxy --port 3000'
			command = "start"
			cmdArgs = args
		}
	case reg.isCommand(args[0]):
		command = args[0]
		cmdArgs = args[1:]
	default:
		return fmt.Errorf("unknown command: %s\n\nRun 'moxy --help' for usage", args[0])
	}

	cmd, ok := reg.lookup(command)
	if !ok {
		return fmt.Errorf("unknown command: %s\n\nRun 'moxy --help' for usage", command)
	}
	return cmd.Run(cmdArgs)
}

func printUsage(reg *Registry) {
	fmt.Print("moxy - per-client HTTP interception proxy\n\n")
	fmt.Print("Usage:\n")
	fmt.Print("  moxy <command> [flags]         Run a command\n")
	fmt.Print("  moxy start [flags]             Start the server\n")
	fmt.Print("  moxy --help                    Show this help message\n\n")

	// Group commands by category in display order.
	categories := []string{"Server", "Rules", "Observability", "Utilities"}

	groups := make(map[string][]*Command)
	for _, cmd := range reg.ordered {
		groups[cmd.Category] = append(groups[cmd.Category], cmd)
	}

	for _, cat := range categories {
		cmds := groups[cat]
		if len(cmds) == 0 {
			continue
		}
		fmt.Printf("%s:\n", cat)
		for _, cmd := range cmds {
			fmt.Printf("  %-24s %s\n", cmd.Name, cmd.Short)
		}
		fmt.Println()
	}

	fmt.Print(`Global Flags:
  -h, --help       Show this help message
  -v, --version    Show version information
      --admin-url  Admin API base URL for client commands
      --json       Output command results in JSON format

Examples:
  # Start the server on the default port (4280)
  moxy start

  # Start on another port with rules preloaded from a directory
  moxy start --port 8080 --rules-dir ./rules

  # Replace a client's rules from a file
  moxy rules set my-client rules.yaml

  # Create a rule interactively
  moxy rules new my-client

  # Watch a client's traffic live
  moxy watch my-client

  # Show recent exchanges
  moxy history my-client

Run 'moxy <command> --help' for more information on a command.
`)
}
