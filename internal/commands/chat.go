package commands

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/caiframework/cai-console/internal/bridge"
	"github.com/caiframework/cai-console/internal/models"
	"github.com/caiframework/cai-console/internal/session"
	"github.com/spf13/cobra"
)

var ChatCmd = &cobra.Command{
	Use:   "chat <session-id>",
	Short: "Open an interactive chat with a session",
	Long: `Connects to the session's push channel, loads the message history,
and reads messages from stdin. The agent's progress (thinking messages,
task updates) streams in as it happens. Exit with /quit or Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	client, cfg, err := loadClient(cmd)
	if err != nil {
		return err
	}
	verbose := verboseFlag(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	br := bridge.New(cfg.WebsocketURL(),
		bridge.WithReconnectPolicy(reconnectPolicy(cfg)),
		bridge.WithVerbose(verbose),
	)
	defer br.Shutdown()

	rec := session.NewReconciler(client, session.WithVerbose(verbose))
	defer rec.Deactivate()

	// Pushed traffic the reconciler stores silently still gets
	// echoed to the terminal.
	unsub := br.Dispatcher().Subscribe(models.EventMessageAdded, func(payload interface{}) {
		event, ok := payload.(models.MessageAdded)
		if !ok || event.Message.Role != models.RoleAssistant {
			return
		}
		if event.Message.IsThinking {
			fmt.Printf("\n💭 %s\n> ", event.Message.Content)
		}
	})
	defer unsub()
	unsubTasks := br.Dispatcher().Subscribe(models.EventTaskUpdate, func(payload interface{}) {
		event, ok := payload.(models.TaskUpdate)
		if !ok {
			return
		}
		fmt.Printf("\n%s task %s: %s\n> ", statusIcon(event.Task.Status), event.Task.ID, event.Task.Status)
	})
	defer unsubTasks()

	if err := br.Connect(ctx, sessionID); err != nil {
		return err
	}
	if err := rec.Activate(ctx, sessionID, br.Dispatcher()); err != nil {
		return err
	}

	for _, msg := range rec.Messages() {
		printMessage(msg)
	}
	fmt.Println()
	fmt.Println("Type a message, /quit to exit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" || line == "/exit" {
				return nil
			}

			reply, err := rec.SendUserMessage(ctx, line)
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				continue
			}
			printMessage(*reply)
		}
	}
}

func printMessage(msg models.Message) {
	prefix := "🧑"
	if msg.Role == models.RoleAssistant {
		prefix = "🤖"
		if msg.IsThinking {
			prefix = "💭"
		}
	}
	fmt.Printf("%s %s\n", prefix, msg.Content)
	if len(msg.ToolsUsed) > 0 {
		fmt.Printf("   (tools: %s)\n", strings.Join(msg.ToolsUsed, ", "))
	}
}
