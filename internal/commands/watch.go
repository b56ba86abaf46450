package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caiframework/cai-console/internal/bridge"
	"github.com/caiframework/cai-console/internal/events"
	"github.com/caiframework/cai-console/internal/models"
	"github.com/spf13/cobra"
)

var WatchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Stream a session's push events to stdout",
	Long: `Connects to the session's push channel and prints every decoded
event as it arrives, including connection state transitions. Useful for
debugging the backend's event flow. Exit with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	WatchCmd.Flags().Bool("json", false, "Print raw event payloads as JSON")
}

func runWatch(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	_, cfg, err := loadClient(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	br := bridge.New(cfg.WebsocketURL(),
		bridge.WithReconnectPolicy(reconnectPolicy(cfg)),
		bridge.WithVerbose(verboseFlag(cmd)),
	)
	defer br.Shutdown()

	unsub := br.Dispatcher().Subscribe(events.Wildcard, func(payload interface{}) {
		stamp := time.Now().Format("15:04:05")
		if asJSON {
			data, err := json.Marshal(payload)
			if err != nil {
				return
			}
			fmt.Printf("%s %s\n", stamp, data)
			return
		}
		switch event := payload.(type) {
		case models.MessageAdded:
			fmt.Printf("%s message_added  [%s] %s\n", stamp, event.Message.Role, event.Message.Content)
		case models.TaskCreated:
			fmt.Printf("%s task_created   %s (%s)\n", stamp, event.Task.ID, event.Task.Status)
		case models.TaskUpdate:
			fmt.Printf("%s task_update    %s → %s\n", stamp, event.Task.ID, event.Task.Status)
		case models.TaskLogEvent:
			fmt.Printf("%s task_log       %s [%s]\n", stamp, event.TaskID, event.Log.Type)
		case bridge.StateChange:
			fmt.Printf("%s state          %s → %s\n", stamp, event.From, event.To)
		case models.Connected:
			fmt.Printf("%s connected      session %s\n", stamp, event.SessionID)
		case models.Pong:
			// Keepalive noise.
		case models.RawEvent:
			fmt.Printf("%s %s %s\n", stamp, event.Type, event.Payload)
		}
	})
	defer unsub()

	if err := br.Connect(ctx, sessionID); err != nil {
		return err
	}

	fmt.Printf("👀 Watching session %s (Ctrl-C to stop)\n", sessionID)
	<-ctx.Done()
	fmt.Println()
	return nil
}
