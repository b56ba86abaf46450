package commands

import (
	"fmt"
	"strings"

	"github.com/caiframework/cai-console/internal/models"
	"github.com/spf13/cobra"
)

var TasksCmd = &cobra.Command{
	Use:   "tasks <session-id>",
	Short: "List a session's tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasks,
}

var tasksCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a running task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksCancel,
}

func init() {
	TasksCmd.AddCommand(tasksCancelCmd)
	TasksCmd.Flags().Bool("logs", false, "Include task logs")
}

func runTasks(cmd *cobra.Command, args []string) error {
	client, _, err := loadClient(cmd)
	if err != nil {
		return err
	}

	tasks, err := client.GetSessionTasks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	if len(tasks) == 0 {
		fmt.Println("📋 No tasks for this session")
		return nil
	}

	showLogs, _ := cmd.Flags().GetBool("logs")

	fmt.Println("📋 Tasks:")
	fmt.Println()
	for _, task := range tasks {
		fmt.Printf("  %s %s (%s)\n", statusIcon(task.Status), task.Message, task.ID)
		fmt.Printf("    Status: %s", task.Status)
		if task.Duration != nil {
			fmt.Printf("   Duration: %.1fs", *task.Duration)
		}
		fmt.Println()
		if len(task.ToolsUsed) > 0 {
			fmt.Printf("    Tools: %s\n", strings.Join(task.ToolsUsed, ", "))
		}
		if task.Error != "" {
			fmt.Printf("    Error: %s\n", task.Error)
		}
		if showLogs {
			for _, entry := range task.Logs {
				line := entry.Result
				if entry.Error != "" {
					line = entry.Error
				}
				fmt.Printf("    [%s] %s %s\n", entry.Type, entry.Tool, line)
			}
		}
	}
	return nil
}

func runTasksCancel(cmd *cobra.Command, args []string) error {
	client, _, err := loadClient(cmd)
	if err != nil {
		return err
	}

	if err := client.CancelTask(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	fmt.Printf("✅ Cancelled task %s\n", args[0])
	return nil
}

func statusIcon(status string) string {
	switch status {
	case models.TaskCompleted:
		return "✅"
	case models.TaskFailed:
		return "❌"
	case models.TaskCancelled:
		return "🚫"
	case models.TaskRunning:
		return "⏳"
	}
	return "•"
}
