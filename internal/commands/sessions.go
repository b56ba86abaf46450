package commands

import (
	"fmt"

	"github.com/caiframework/cai-console/internal/api"
	"github.com/caiframework/cai-console/internal/config"
	"github.com/spf13/cobra"
)

var SessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
	RunE:  runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	RunE:  runSessionsList,
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsCreate,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCreateCmd.Flags().String("agent", "", "Agent type to run (default from config)")
	sessionsCreateCmd.Flags().String("model", "", "Model to use (default from config)")
	SessionsCmd.AddCommand(sessionsListCmd)
	SessionsCmd.AddCommand(sessionsCreateCmd)
	SessionsCmd.AddCommand(sessionsDeleteCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	client, _, err := loadClient(cmd)
	if err != nil {
		return err
	}

	sessions, err := client.GetSessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("📋 No sessions")
		fmt.Println()
		fmt.Println("Create one with: cai-console sessions create <name>")
		return nil
	}

	fmt.Println("📋 Sessions:")
	fmt.Println()
	for i, s := range sessions {
		fmt.Printf("%d. %s (%s)\n", i+1, s.Name, s.ID)
		fmt.Printf("   Agent: %s   Model: %s   Status: %s\n", s.AgentType, s.Model, s.Status)
	}
	fmt.Println()
	fmt.Printf("Total: %d sessions\n", len(sessions))
	return nil
}

func runSessionsCreate(cmd *cobra.Command, args []string) error {
	client, cfg, err := loadClient(cmd)
	if err != nil {
		return err
	}

	agent, _ := cmd.Flags().GetString("agent")
	if agent == "" {
		agent = cfg.DefaultAgent
	}
	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = cfg.DefaultModel
	}
	if agent == "" {
		return fmt.Errorf("no agent type: pass --agent or set default_agent in %s", config.GetConfigPath())
	}

	session, err := client.CreateSession(cmd.Context(), api.CreateSessionRequest{
		Name:      args[0],
		AgentType: agent,
		Model:     model,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	fmt.Printf("✅ Created session %s (%s)\n", session.Name, session.ID)
	fmt.Printf("   Chat with: cai-console chat %s\n", session.ID)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	client, _, err := loadClient(cmd)
	if err != nil {
		return err
	}

	if err := client.DeleteSession(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	fmt.Printf("✅ Deleted session %s\n", args[0])
	return nil
}
