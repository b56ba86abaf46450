package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models",
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	client, _, err := loadClient(cmd)
	if err != nil {
		return err
	}

	resp, err := client.GetModels(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	fmt.Println("🧠 Available models:")
	fmt.Println()
	for _, m := range resp.Models {
		marker := " "
		if m.ID == resp.Current {
			marker = "*"
		}
		fmt.Printf("  %s %s (%s)\n", marker, m.ID, m.Provider)
	}
	if resp.Current != "" {
		fmt.Println()
		fmt.Printf("Current: %s\n", resp.Current)
	}
	return nil
}
