package commands

import (
	"fmt"

	"github.com/caiframework/cai-console/internal/config"
	"github.com/spf13/cobra"
)

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend health and configuration",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, cfg, err := loadClient(cmd)
	if err != nil {
		return err
	}

	fmt.Println("📊 CAI Console Status")
	fmt.Println()
	fmt.Printf("🌐 Server: %s\n", cfg.ServerURL)
	fmt.Printf("📁 Config: %s\n", config.GetConfigPath())
	fmt.Println()

	health, err := client.Health(cmd.Context())
	if err != nil {
		fmt.Printf("❌ Backend unreachable: %v\n", err)
		return nil
	}

	fmt.Printf("✅ Backend: %s\n", health.Status)
	fmt.Printf("   Sessions: %d   Running tasks: %d\n", health.ActiveSessions, health.ActiveTasks)
	return nil
}
