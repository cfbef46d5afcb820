package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hyperlab-be/ralph/internal/eventbus"
	"github.com/hyperlab-be/ralph/internal/fsstore"
	"github.com/hyperlab-be/ralph/internal/loop"
	"github.com/spf13/cobra"
)

var getSnapshotCmd = &cobra.Command{
	Use:   "get-snapshot <prd-name>",
	Short: "Print the latest persisted execution snapshot for a prd",
	Args:  cobra.ExactArgs(1),
	RunE:  runGetSnapshot,
}

func init() {
	rootCmd.AddCommand(getSnapshotCmd)
}

func runGetSnapshot(cmd *cobra.Command, args []string) error {
	projectRoot, err := projectRootForCommand()
	if err != nil {
		return err
	}

	var snap eventbus.ExecutionSnapshot
	path := loop.SnapshotPath(projectRoot, args[0])
	if err := fsstore.ReadJSON(path, &snap); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no snapshot recorded yet for prd %q", args[0])
		}
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
