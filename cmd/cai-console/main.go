package main

import (
	"fmt"
	"os"

	"github.com/caiframework/cai-console/internal/commands"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=X.Y.Z"
	Version = "0.0.0-dev"
	verbose bool
	server  string
)

var rootCmd = &cobra.Command{
	Use:   "cai-console",
	Short: "CAI Console - Chat with CAI agent sessions from the terminal",
	Long: `CAI Console talks to a running CAI web backend: it manages sessions,
streams the backend's realtime events over one push connection, and keeps
the local view of messages and tasks in sync while you chat.

Quick Start:
  cai-console sessions create recon --agent redteam_agent
  cai-console chat <session-id>

Commands:
  sessions list|create|delete   Manage sessions
  chat <session-id>             Interactive chat with live updates
  watch <session-id>            Stream raw push events
  tasks <session-id>            Show a session's tasks
  tasks cancel <task-id>        Cancel a running task
  agents                        List available agents
  models                        List available models
  status                        Backend health and config

Config: ~/.cai/console.yaml`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "Backend base URL (overrides config)")

	rootCmd.AddCommand(commands.SessionsCmd)
	rootCmd.AddCommand(commands.ChatCmd)
	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.TasksCmd)
	rootCmd.AddCommand(commands.AgentsCmd)
	rootCmd.AddCommand(commands.ModelsCmd)
	rootCmd.AddCommand(commands.StatusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
