package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var AgentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List available agent types",
	RunE:  runAgents,
}

func runAgents(cmd *cobra.Command, args []string) error {
	client, _, err := loadClient(cmd)
	if err != nil {
		return err
	}

	agents, err := client.GetAgents(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}

	fmt.Println("🤖 Available agents:")
	fmt.Println()
	for _, agent := range agents {
		fmt.Printf("  • %s: %s\n", agent.Name, agent.DisplayName)
		if agent.Description != "" {
			fmt.Printf("    %s\n", agent.Description)
		}
		if len(agent.Tools) > 0 {
			fmt.Printf("    Tools: %s\n", strings.Join(agent.Tools, ", "))
		}
	}
	return nil
}
