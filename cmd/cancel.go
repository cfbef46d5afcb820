package cmd

import (
	"fmt"

	"github.com/hyperlab-be/ralph/internal/loop"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <prd-name>",
	Short: "Request a running execution cancel immediately",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	projectRoot, err := projectRootForCommand()
	if err != nil {
		return err
	}
	if err := loop.RequestControl(projectRoot, args[0], loop.ControlRequest{Cancel: true}); err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}
	printSuccess(fmt.Sprintf("Cancel requested for prd %q", args[0]))
	return nil
}
