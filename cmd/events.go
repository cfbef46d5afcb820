package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperlab-be/ralph/internal/config"
	"github.com/hyperlab-be/ralph/internal/eventbus"
	"github.com/spf13/cobra"
)

var streamEventsCmd = &cobra.Command{
	Use:   "stream-events <loop-name>",
	Short: "Stream status events from a running execution as newline-delimited JSON",
	Long: `Attach to a running execution's event bus and print each status event
as it is published, until interrupted (SIGINT/SIGTERM); it keeps waiting
after the execution itself has ended.

<loop-name> is the name under which the execution registered itself
(see 'ralph list'), not the prd name.`,
	Args: cobra.ExactArgs(1),
	RunE: runStreamEvents,
}

func init() {
	rootCmd.AddCommand(streamEventsCmd)
}

func runStreamEvents(cmd *cobra.Command, args []string) error {
	l, err := config.GetLoop(args[0])
	if err != nil {
		return fmt.Errorf("failed to get loop: %w", err)
	}
	if l == nil {
		return fmt.Errorf("loop not found: %s", args[0])
	}
	if l.BusURL == "" || l.ExecutionID == "" {
		return fmt.Errorf("loop %q has no live event bus (is it running?)", args[0])
	}

	enc := json.NewEncoder(os.Stdout)
	unsubscribe, err := eventbus.SubscribeURL(l.BusURL, l.ExecutionID, func(evt eventbus.RalphLoopStatusEvent) {
		_ = enc.Encode(evt)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer unsubscribe()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	return nil
}
